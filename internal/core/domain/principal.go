package domain

// Principal is the authenticated caller as resolved by the upstream auth layer.
type Principal struct {
	ID       string
	Name     string
	Email    string
	Operator bool
}

func (p Principal) Authenticated() bool {
	return p.ID != ""
}

// CanAccess reports whether p may read or act on o.
func (p Principal) CanAccess(o *Order) bool {
	if o == nil {
		return false
	}
	return p.Operator || (p.ID != "" && o.Owner.ID == p.ID)
}

func (p Principal) Customer() Customer {
	return Customer{ID: p.ID, Name: p.Name, Email: p.Email}
}
