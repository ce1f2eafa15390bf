package gateway

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront-orders/internal/core/domain"
)

const (
	testKey  = "gtKFFx"
	testSalt = "eCwWELxi"
	testTxn  = "txn_ord1_1700000000000"

	requestHash = "6234af231f87dd47a6e98029c0c319cfc6495b392d6c9e80762aa063f871a2a8b03b892bf95a159724088307f3b3ba935aab865b1139c20f37930458c2e9d928"
	successHash = "3522cfc3f736c253e84ab6a7f93a37b6e3ec4d94dc4a9ac96e317aab96c91b6a6c5c04c4bbae9ea19efdcaaa3742300643e3980a54967530563b6f9cbf30f679"
	failureHash = "c1bc3e8f8a8937ff560d7a6c55ffd00679f7e24b6f069b3b0f1824407360aa12fec008ea956e509ce38750a826b1bcca3d3b5240df318fe190e392471e885a89"
	chargesHash = "9d798600b2402c89b425f94b8e5f47c6c7be2003e6e81ed04298d63fe543b6d1c02c2be4743dd83a16420c049262c20440aa003e3f8d84f5c035ca9620a4ab2c"
)

func newTestPayU(t *testing.T) *PayU {
	t.Helper()
	p, err := NewPayU(testKey, testSalt, "test", "https://shop.example/ok", "https://shop.example/fail")
	require.NoError(t, err)
	return p
}

func callback(status, hash string) domain.PaymentCallback {
	return domain.PaymentCallback{
		Status:      status,
		TxnID:       testTxn,
		Hash:        hash,
		Key:         testKey,
		Amount:      "300.00",
		ProductInfo: "Order-ord1",
		FirstName:   "Asha",
		Email:       "asha@example.com",
		UDF1:        "ord1",
	}
}

func TestBuildPaymentRequest(t *testing.T) {
	p := newTestPayU(t)

	redirect, err := p.BuildPaymentRequest(domain.PaymentRequest{
		OrderID:     "ord1",
		TxnID:       testTxn,
		Amount:      decimal.NewFromInt(300),
		ProductInfo: "Order-ord1",
		FirstName:   "Asha",
		Email:       "asha@example.com",
		Phone:       "9999999999",
	})
	require.NoError(t, err)

	assert.Equal(t, SandboxActionURL, redirect.ActionURL)
	assert.Equal(t, "300.00", redirect.Params["amount"])
	assert.Equal(t, "ord1", redirect.Params["udf1"])
	assert.Equal(t, "https://shop.example/ok", redirect.Params["surl"])
	assert.Equal(t, "https://shop.example/fail", redirect.Params["furl"])
	assert.Equal(t, requestHash, redirect.Params["hash"])
	assert.NotContains(t, redirect.Params, "salt")
	for _, v := range redirect.Params {
		assert.NotContains(t, v, testSalt)
	}
}

func TestBuildPaymentRequest_RejectsNonPositiveAmount(t *testing.T) {
	p := newTestPayU(t)

	_, err := p.BuildPaymentRequest(domain.PaymentRequest{OrderID: "ord1", TxnID: testTxn, Amount: decimal.Zero})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNewPayU_Environment(t *testing.T) {
	p, err := NewPayU(testKey, testSalt, "prod", "", "")
	require.NoError(t, err)
	assert.Equal(t, ProductionActionURL, p.actionURL)

	_, err = NewPayU(testKey, testSalt, "staging", "", "")
	assert.Error(t, err)

	_, err = NewPayU("", testSalt, "test", "", "")
	assert.Error(t, err)
}

func TestVerifyCallback(t *testing.T) {
	p := newTestPayU(t)

	cases := []struct {
		name    string
		cb      domain.PaymentCallback
		want    domain.PaymentStatus
		wantErr error
	}{
		{name: "success", cb: callback("success", successHash), want: domain.PaymentPaid},
		{name: "failure", cb: callback("failure", failureHash), want: domain.PaymentFailed},
		{name: "uppercase hash", cb: callback("success", strings.ToUpper(successHash)), want: domain.PaymentPaid},
		{name: "status flipped", cb: callback("success", failureHash), wantErr: domain.ErrInvalidSignature},
		{name: "missing hash", cb: callback("success", ""), wantErr: domain.ErrMalformedCallback},
		{
			name: "tampered amount",
			cb: func() domain.PaymentCallback {
				cb := callback("success", successHash)
				cb.Amount = "1.00"
				return cb
			}(),
			wantErr: domain.ErrInvalidSignature,
		},
		{
			name: "foreign key",
			cb: func() domain.PaymentCallback {
				cb := callback("success", successHash)
				cb.Key = "other"
				return cb
			}(),
			wantErr: domain.ErrInvalidSignature,
		},
		{
			name: "additional charges",
			cb: func() domain.PaymentCallback {
				cb := callback("success", chargesHash)
				cb.AdditionalCharges = "12.50"
				return cb
			}(),
			want: domain.PaymentPaid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.VerifyCallback(tc.cb)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, domain.PaymentPaid, MapStatus("success"))
	assert.Equal(t, domain.PaymentFailed, MapStatus("failure"))
	assert.Equal(t, domain.PaymentPending, MapStatus("pending"))
	assert.Equal(t, domain.PaymentPending, MapStatus(""))
}
