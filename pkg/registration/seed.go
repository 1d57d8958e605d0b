package registration

import (
	"context"
	"fmt"

	"github.com/regledger/regledger/pkg/ledger"
)

// Fixtures is a data set for Seed. Licenses and registrations are matched
// to people by position: DriversLicenses[i] and VehicleRegistrations[i]
// belong to People[i].
type Fixtures struct {
	People               []Person              `json:"people" yaml:"people" validate:"dive"`
	DriversLicenses      []DriversLicense      `json:"driversLicenses" yaml:"driversLicenses" validate:"dive"`
	VehicleRegistrations []VehicleRegistration `json:"vehicleRegistrations" yaml:"vehicleRegistrations" validate:"dive"`
	Vehicles             []Vehicle             `json:"vehicles" yaml:"vehicles" validate:"dive"`
}

// Validate checks field constraints and that every license and
// registration has a matching person.
func (f Fixtures) Validate() error {
	if err := validate.Struct(f); err != nil {
		return ledger.NewValidationError("invalid fixtures", err)
	}
	if len(f.DriversLicenses) > len(f.People) {
		return ledger.NewValidationError(
			fmt.Sprintf("%d drivers licenses for %d people", len(f.DriversLicenses), len(f.People)), nil)
	}
	if len(f.VehicleRegistrations) > len(f.People) {
		return ledger.NewValidationError(
			fmt.Sprintf("%d registrations for %d people", len(f.VehicleRegistrations), len(f.People)), nil)
	}
	return nil
}

// SeedResult holds the document ids Seed assigned.
type SeedResult struct {
	PersonIDs       []string `json:"personIds"`
	LicenseIDs      []string `json:"licenseIds"`
	RegistrationIDs []string `json:"registrationIds"`
	VehicleIDs      []string `json:"vehicleIds"`
}

// Seed inserts f. People are inserted first and their document ids are
// written into the matching licenses and registrations before those are
// inserted. f itself is not modified.
func Seed(ctx context.Context, txn ledger.Transaction, f Fixtures) (SeedResult, error) {
	var out SeedResult
	if err := f.Validate(); err != nil {
		return out, err
	}

	var err error
	if out.PersonIDs, err = insertAll(ctx, txn, TablePerson, f.People); err != nil {
		return out, err
	}

	licenses := make([]DriversLicense, len(f.DriversLicenses))
	for i, l := range f.DriversLicenses {
		l.PersonID = out.PersonIDs[i]
		licenses[i] = l
	}

	registrations := make([]VehicleRegistration, len(f.VehicleRegistrations))
	for i, r := range f.VehicleRegistrations {
		r.Owners.PrimaryOwner.PersonID = out.PersonIDs[i]
		if r.Owners.SecondaryOwners == nil {
			r.Owners.SecondaryOwners = []OwnerRef{}
		} else {
			r.Owners.SecondaryOwners = append([]OwnerRef(nil), r.Owners.SecondaryOwners...)
		}
		registrations[i] = r
	}

	if out.LicenseIDs, err = insertAll(ctx, txn, TableDriversLicense, licenses); err != nil {
		return out, err
	}
	if out.RegistrationIDs, err = insertAll(ctx, txn, TableVehicleRegistration, registrations); err != nil {
		return out, err
	}
	if out.VehicleIDs, err = insertAll(ctx, txn, TableVehicle, f.Vehicles); err != nil {
		return out, err
	}
	return out, nil
}

func insertAll[T any](ctx context.Context, txn ledger.Transaction, table string, docs []T) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	res, err := txn.Execute(ctx, fmt.Sprintf("INSERT INTO %s ?", table), docs)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", table, err)
	}
	ids := make([]string, 0, res.Len())
	for res.Next() {
		id, _ := res.Document()["documentId"].(string)
		ids = append(ids, id)
	}
	return ids, nil
}

// SampleFixtures returns the sample data set of five people with one
// license, registration and vehicle each.
func SampleFixtures() Fixtures {
	return Fixtures{
		People: []Person{
			{FirstName: "Raul", LastName: "Lewis", DOB: "1963-08-19", GovID: "LEWISR261LL", GovIDType: "Driver License", Address: "1719 University Street, Seattle, WA, 98109"},
			{FirstName: "Brent", LastName: "Logan", DOB: "1967-07-03", GovID: "LOGANB486CG", GovIDType: "Driver License", Address: "43 Stockert Hollow Road, Everett, WA, 98203"},
			{FirstName: "Alexis", LastName: "Pena", DOB: "1974-02-10", GovID: "744 849 301", GovIDType: "SSN", Address: "4058 Melrose Street, Spokane Valley, WA, 99206"},
			{FirstName: "Melvin", LastName: "Parker", DOB: "1976-05-22", GovID: "P626-168-229-765", GovIDType: "Passport", Address: "4362 Ryder Avenue, Seattle, WA, 98101"},
			{FirstName: "Salvatore", LastName: "Spencer", DOB: "1997-11-15", GovID: "S152-780-97-415-0", GovIDType: "Passport", Address: "4450 Honeysuckle Lane, Seattle, WA, 98101"},
		},
		DriversLicenses: []DriversLicense{
			{LicenseNumber: "LEWISR261LL", LicenseType: "Learner", ValidFromDate: "2016-12-20", ValidToDate: "2020-11-15"},
			{LicenseNumber: "LOGANB486CG", LicenseType: "Probationary", ValidFromDate: "2016-04-06", ValidToDate: "2020-11-15"},
			{LicenseNumber: "744 849 301", LicenseType: "Full", ValidFromDate: "2017-12-06", ValidToDate: "2022-10-15"},
			{LicenseNumber: "P626-168-229-765", LicenseType: "Learner", ValidFromDate: "2017-08-16", ValidToDate: "2021-11-15"},
			{LicenseNumber: "S152-780-97-415-0", LicenseType: "Probationary", ValidFromDate: "2015-08-15", ValidToDate: "2021-08-21"},
		},
		VehicleRegistrations: []VehicleRegistration{
			{VIN: "1N4AL11D75C109151", LicensePlateNumber: "LEWISR261LL", State: "WA", City: "Seattle", PendingPenaltyTicketAmount: 90.25, ValidFromDate: "2017-08-21", ValidToDate: "2020-05-11"},
			{VIN: "KM8SRDHF6EU074761", LicensePlateNumber: "CA762X", State: "WA", City: "Kent", PendingPenaltyTicketAmount: 130.75, ValidFromDate: "2017-09-14", ValidToDate: "2020-06-25"},
			{VIN: "3HGGK5G53FM761765", LicensePlateNumber: "CD820Z", State: "WA", City: "Everett", PendingPenaltyTicketAmount: 442.30, ValidFromDate: "2011-03-17", ValidToDate: "2021-03-24"},
			{VIN: "1HVBBAANXWH544237", LicensePlateNumber: "LS477D", State: "WA", City: "Tacoma", PendingPenaltyTicketAmount: 42.20, ValidFromDate: "2011-10-26", ValidToDate: "2023-09-25"},
			{VIN: "1C4RJFAG0FC625797", LicensePlateNumber: "TH393F", State: "WA", City: "Olympia", PendingPenaltyTicketAmount: 30.45, ValidFromDate: "2013-09-02", ValidToDate: "2024-03-19"},
		},
		Vehicles: []Vehicle{
			{VIN: "1N4AL11D75C109151", Type: "Sedan", Year: 2011, Make: "Audi", Model: "A5", Color: "Silver"},
			{VIN: "KM8SRDHF6EU074761", Type: "Sedan", Year: 2015, Make: "Tesla", Model: "Model S", Color: "Blue"},
			{VIN: "3HGGK5G53FM761765", Type: "Motorcycle", Year: 2011, Make: "Ducati", Model: "Monster 1200", Color: "Yellow"},
			{VIN: "1HVBBAANXWH544237", Type: "Semi", Year: 2009, Make: "Ford", Model: "F 150", Color: "Black"},
			{VIN: "1C4RJFAG0FC625797", Type: "Sedan", Year: 2019, Make: "Mercedes", Model: "CLK 350", Color: "White"},
		},
	}
}
