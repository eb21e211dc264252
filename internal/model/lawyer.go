package model

// Lawyer is the attorney a pipeline run is executed for, identified by OAB
// registration number and UF (jurisdiction).
type Lawyer struct {
	ID        string `json:"id,omitempty"`
	OABNumber string `json:"oab_number"`
	UF        string `json:"uf"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
}

// Attorney returns the lawyer as an attorney entry on a process.
func (l Lawyer) Attorney() Attorney {
	return Attorney{Name: l.Name, OAB: l.OABNumber + "/" + l.UF}
}
