// internal/models/personal.go
package models

import (
	"strings"
	"time"
)

const DateLayout = "02/01/2006"

type PersonalInfo struct {
	Title                       string `json:"title,omitempty"`
	Surname                     string `json:"surname,omitempty"`
	Forename                    string `json:"forename,omitempty"`
	Gender                      string `json:"gender,omitempty"`
	DateOfBirth                 string `json:"dateOfBirth,omitempty"`
	Age                         *int   `json:"age,omitempty"`
	CountryPrimaryQualification string `json:"countryPrimaryQualification,omitempty"`
	Deceased                    bool   `json:"deceased"`
	DeceasedDate                string `json:"deceasedDate,omitempty"`
}

type ContactInfo struct {
	PreferredAddress     string `json:"preferredAddress,omitempty"`
	Eircode              string `json:"eircode,omitempty"`
	BuildingOrHouse      string `json:"buildingOrHouse,omitempty"`
	StreetOrRoad         string `json:"streetOrRoad,omitempty"`
	AreaOrTown           string `json:"areaOrTown,omitempty"`
	CountyCityOrPostCode string `json:"countyCityOrPostCode,omitempty"`
	Country              string `json:"country,omitempty"`
	FullAddress          string `json:"fullAddress,omitempty"`
	MobileNumber         string `json:"mobileNumber,omitempty"`
	TelephoneNumber      string `json:"telephoneNumber,omitempty"`
	PreferredEmail       string `json:"preferredEmail,omitempty"`
	PersonalEmail        string `json:"personalEmail,omitempty"`
	WorkEmail            string `json:"workEmail,omitempty"`
	ConsentSMS           bool   `json:"consentSMS"`
	ConsentEmail         bool   `json:"consentEmail"`
}

type PersonalRecord struct {
	ID              string            `json:"id"`
	ApplicationID   string            `json:"applicationId"`
	UserID          string            `json:"userId,omitempty"`
	PersonalInfo    PersonalInfo      `json:"personalInfo"`
	ContactInfo     ContactInfo       `json:"contactInfo"`
	Status          ApplicationStatus `json:"applicationStatus"`
	ApprovalDetails ApprovalDetails   `json:"approvalDetails"`
	Meta            RecordMeta        `json:"meta"`
	Version         int               `json:"version"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Derive recomputes age and full address from the stored inputs.
func (p *PersonalRecord) Derive(now time.Time) {
	p.PersonalInfo.Age = AgeFromDateOfBirth(p.PersonalInfo.DateOfBirth, now)
	p.ContactInfo.FullAddress = FullAddress(p.ContactInfo)
}

// AgeFromDateOfBirth parses a dd/mm/yyyy date and returns whole years at now.
// Unparseable or future dates yield nil.
func AgeFromDateOfBirth(dob string, now time.Time) *int {
	if dob == "" {
		return nil
	}
	born, err := time.Parse(DateLayout, dob)
	if err != nil || born.After(now) {
		return nil
	}
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	return &age
}

// FullAddress joins the non-empty address lines with ", ".
func FullAddress(c ContactInfo) string {
	parts := make([]string, 0, 5)
	for _, p := range []string{c.BuildingOrHouse, c.StreetOrRoad, c.AreaOrTown, c.CountyCityOrPostCode, c.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
