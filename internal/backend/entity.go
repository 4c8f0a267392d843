package backend

// Account is a user known to the dev backend.
type Account struct {
	ID           int64
	Correo       string
	PasswordHash string
	DisplayName  string
	Role         string
	CompanyID    int64
	// Status is active or disabled.
	Status string
}

// Profile is the public projection of an Account returned to clients.
type Profile struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	CompanyID   int64  `json:"companyId"`
	Avatar      string `json:"avatar,omitempty"`
}

func (a *Account) Profile() Profile {
	return Profile{ID: a.ID, DisplayName: a.DisplayName, Role: a.Role, CompanyID: a.CompanyID}
}

// Product is the sample protected resource.
type Product struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	CompanyID int64   `json:"companyId"`
}
