package handler

import (
	"encoding/json"
	"errors"
	"html/template"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/rl1809/storefront-orders/internal/adapter/metrics"
	"github.com/rl1809/storefront-orders/internal/core/domain"
	"github.com/rl1809/storefront-orders/internal/core/service"
)

const HeaderIdempotencyKey = "Idempotency-Key"

var ackPage = template.Must(template.New("ack").Parse(`<html>
  <body style="font-family: sans-serif; text-align: center; margin-top: 50px;">
    <h2>Payment {{.Status}}</h2>
    <p>Transaction ID: {{.TxnID}}</p>
    <p>Gateway Payment ID: {{.GatewayPaymentID}}</p>
    <p>You can now close this tab and return to the app.</p>
  </body>
</html>
`))

type HTTPHandler struct {
	orders   *service.OrderService
	payments *service.PaymentService
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewHTTPHandler wires the JSON API. payments may be nil when no merchant
// credentials are configured; the payment routes then answer 503.
func NewHTTPHandler(orders *service.OrderService, payments *service.PaymentService, m *metrics.Metrics, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{orders: orders, payments: payments, metrics: m, logger: logger}
}

func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("POST /api/orders", h.metrics.Instrument("place_order", h.PlaceOrder))
	mux.HandleFunc("GET /api/orders/my", h.metrics.Instrument("list_my_orders", h.ListMyOrders))
	mux.HandleFunc("GET /api/orders/{id}", h.metrics.Instrument("get_order", h.GetOrder))
	mux.HandleFunc("GET /api/orders", h.metrics.Instrument("list_orders", h.ListOrders))
	mux.HandleFunc("PUT /api/orders/{id}/status", h.metrics.Instrument("update_status", h.UpdateStatus))
	mux.HandleFunc("POST /api/payments/init", h.metrics.Instrument("initiate_payment", h.InitiatePayment))
	mux.HandleFunc("POST /api/payments/callback", h.metrics.Instrument("payment_callback", h.PaymentCallback))
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	in := service.PlaceOrderInput{
		Items:          make([]service.PlaceOrderItem, len(req.Items)),
		Address:        req.Address,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
	}
	for i, item := range req.Items {
		in.Items[i] = service.PlaceOrderItem{ProductID: item.Product, Quantity: item.Quantity}
	}

	order, err := h.orders.PlaceOrder(r.Context(), principalFromRequest(r), in)
	if err != nil {
		h.metrics.OrderRejections.WithLabelValues(rejectionReason(err)).Inc()
		h.writeError(w, err)
		return
	}

	h.metrics.OrdersPlaced.Inc()
	writeJSON(w, http.StatusCreated, newOrderView(order))
}

func (h *HTTPHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListMyOrders(r.Context(), principalFromRequest(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderViews(orders))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), principalFromRequest(r), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrderFilter(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), principalFromRequest(r), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderViews(orders))
}

func (h *HTTPHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	order, err := h.orders.UpdateFulfillmentStatus(r.Context(), principalFromRequest(r), r.PathValue("id"), req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}

func (h *HTTPHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Message: "payments are not configured"})
		return
	}

	var req InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "invalid request body"})
		return
	}

	redirect, err := h.payments.InitiatePayment(r.Context(), principalFromRequest(r), req.OrderID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redirect)
}

// PaymentCallback is posted by the gateway, usually as a browser form
// submission, so it answers with a page rather than JSON.
func (h *HTTPHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		http.Error(w, "payments are not configured", http.StatusServiceUnavailable)
		return
	}

	cb, err := parseCallback(r)
	if err != nil {
		h.metrics.Callbacks.WithLabelValues("malformed").Inc()
		http.Error(w, "Invalid payment response", http.StatusBadRequest)
		return
	}

	result, err := h.payments.HandleCallback(r.Context(), cb)
	if err != nil {
		h.metrics.Callbacks.WithLabelValues(rejectionReason(err)).Inc()
		status := httpStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("payment callback failed", zap.String("txn_id", cb.TxnID), zap.Error(err))
			http.Error(w, "Something went wrong processing payment response.", status)
			return
		}
		http.Error(w, "Invalid payment response: "+err.Error(), status)
		return
	}

	if result.Applied {
		h.metrics.Callbacks.WithLabelValues("applied").Inc()
	} else {
		h.metrics.Callbacks.WithLabelValues("noop").Inc()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := ackPage.Execute(w, cb); err != nil {
		h.logger.Error("render acknowledgment", zap.Error(err))
	}
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseOrderFilter(r *http.Request) (domain.OrderFilter, error) {
	var filter domain.OrderFilter
	q := r.URL.Query()

	if s := q.Get("status"); s != "" {
		status, err := domain.ParseFulfillmentStatus(s)
		if err != nil {
			return filter, err
		}
		filter.FulfillmentStatus = status
	}
	if s := q.Get("paymentStatus"); s != "" {
		status, err := domain.ParsePaymentStatus(s)
		if err != nil {
			return filter, err
		}
		filter.PaymentStatus = status
	}
	return filter, nil
}

func parseCallback(r *http.Request) (domain.PaymentCallback, error) {
	fields := make(map[string]string)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return domain.PaymentCallback{}, err
		}
		for k, v := range body {
			if s, ok := v.(string); ok {
				fields[k] = s
			}
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return domain.PaymentCallback{}, err
		}
		for k := range r.PostForm {
			fields[k] = r.PostForm.Get(k)
		}
	}

	return domain.PaymentCallback{
		Status:            fields["status"],
		TxnID:             fields["txnid"],
		GatewayPaymentID:  fields["mihpayid"],
		Hash:              fields["hash"],
		Key:               fields["key"],
		Amount:            fields["amount"],
		ProductInfo:       fields["productinfo"],
		FirstName:         fields["firstname"],
		Email:             fields["email"],
		UDF1:              fields["udf1"],
		UDF2:              fields["udf2"],
		UDF3:              fields["udf3"],
		UDF4:              fields["udf4"],
		UDF5:              fields["udf5"],
		AdditionalCharges: fields["additionalCharges"],
	}, nil
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
		message = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Message: message})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrOptimisticLock):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrMalformedCallback),
		errors.Is(err, domain.ErrInvalidSignature),
		errors.Is(err, domain.ErrAmountMismatch):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrMalformedCallback):
		return "invalid"
	case errors.Is(err, domain.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, domain.ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "conflict"
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrForbidden):
		return "unauthorized"
	}
	return "error"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
