package registration

// Table names.
const (
	TablePerson              = "Person"
	TableVehicle             = "Vehicle"
	TableVehicleRegistration = "VehicleRegistration"
	TableDriversLicense      = "DriversLicense"
)

// Tables lists every table the registration workflows use, in creation
// order.
var Tables = []string{
	TablePerson,
	TableVehicle,
	TableVehicleRegistration,
	TableDriversLicense,
}

// Person is a document in the Person table. GovId is the business key.
type Person struct {
	FirstName string `json:"FirstName" yaml:"FirstName" validate:"required"`
	LastName  string `json:"LastName" yaml:"LastName" validate:"required"`
	DOB       string `json:"DOB" yaml:"DOB"`
	GovID     string `json:"GovId" yaml:"GovId" validate:"required"`
	GovIDType string `json:"GovIdType" yaml:"GovIdType"`
	Address   string `json:"Address" yaml:"Address"`
}

// Vehicle is a document in the Vehicle table. VIN is the business key.
type Vehicle struct {
	VIN   string `json:"VIN" yaml:"VIN" validate:"required"`
	Type  string `json:"Type" yaml:"Type"`
	Year  int    `json:"Year" yaml:"Year"`
	Make  string `json:"Make" yaml:"Make"`
	Model string `json:"Model" yaml:"Model"`
	Color string `json:"Color" yaml:"Color"`
}

// OwnerRef points at a Person document by id.
type OwnerRef struct {
	PersonID string `json:"PersonId" yaml:"PersonId"`
}

// Owners holds the primary and secondary owners of a registration.
type Owners struct {
	PrimaryOwner    OwnerRef   `json:"PrimaryOwner" yaml:"PrimaryOwner"`
	SecondaryOwners []OwnerRef `json:"SecondaryOwners" yaml:"SecondaryOwners"`
}

// HasSecondaryOwner reports whether personID is among the secondary owners.
func (o Owners) HasSecondaryOwner(personID string) bool {
	for _, s := range o.SecondaryOwners {
		if s.PersonID == personID {
			return true
		}
	}
	return false
}

// VehicleRegistration is a document in the VehicleRegistration table. VIN
// and LicensePlateNumber are business keys.
type VehicleRegistration struct {
	VIN                        string  `json:"VIN" yaml:"VIN" validate:"required"`
	LicensePlateNumber         string  `json:"LicensePlateNumber" yaml:"LicensePlateNumber" validate:"required"`
	State                      string  `json:"State" yaml:"State"`
	City                       string  `json:"City" yaml:"City"`
	PendingPenaltyTicketAmount float64 `json:"PendingPenaltyTicketAmount" yaml:"PendingPenaltyTicketAmount"`
	ValidFromDate              string  `json:"ValidFromDate" yaml:"ValidFromDate"`
	ValidToDate                string  `json:"ValidToDate" yaml:"ValidToDate"`
	Owners                     Owners  `json:"Owners" yaml:"Owners"`
}

// DriversLicense is a document in the DriversLicense table. LicenseNumber
// is the business key.
type DriversLicense struct {
	PersonID      string `json:"PersonId" yaml:"PersonId"`
	LicenseNumber string `json:"LicenseNumber" yaml:"LicenseNumber" validate:"required"`
	LicenseType   string `json:"LicenseType" yaml:"LicenseType"`
	ValidFromDate string `json:"ValidFromDate" yaml:"ValidFromDate"`
	ValidToDate   string `json:"ValidToDate" yaml:"ValidToDate"`
}
