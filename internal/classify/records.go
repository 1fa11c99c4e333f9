package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lookupd/lookupd/internal/model"
)

// Record is one decoded lookup result. Fields are optional; a blank
// string means the vendor did not supply the field. Extra holds fields
// that have no typed slot, keyed by the vendor's own name.
type Record struct {
	Name       string
	FatherName string
	Address    string
	Circle     string
	Phone      string
	AltPhone   string
	Email      string
	IDNumber   string
	Extra      map[string]string
}

// Per-category envelopes. Vendors disagree on field names, so each
// envelope lists the aliases seen in the wild and the decoder folds
// them into the shared Record shape.

type identityRecord struct {
	Name       string `json:"name"`
	FullName   string `json:"full_name"`
	FatherName string `json:"father_name"`
	FName      string `json:"fname"`
	Address    string `json:"address"`
	Circle     string `json:"circle"`
	Mobile     string `json:"mobile"`
	Phone      string `json:"phone"`
	AltMobile  string `json:"alt_mobile"`
	Email      string `json:"email"`
	IDNumber   string `json:"id_number"`
	Aadhaar    string `json:"aadhaar"`
}

type identityEnvelope struct {
	Data    []identityRecord `json:"data"`
	Result  []identityRecord `json:"result"`
	Records []identityRecord `json:"records"`
}

type relationshipEnvelope struct {
	Data []struct {
		Name     string `json:"name"`
		Relation string `json:"relation"`
		Age      string `json:"age"`
		Address  string `json:"address"`
	} `json:"data"`
}

type vehicleRecord struct {
	OwnerName    string `json:"owner_name"`
	FatherName   string `json:"father_name"`
	RegNo        string `json:"reg_no"`
	Model        string `json:"model"`
	FuelType     string `json:"fuel_type"`
	RegDate      string `json:"reg_date"`
	Address      string `json:"address"`
	RTO          string `json:"rto"`
	InsuranceUpt string `json:"insurance_upto"`
}

type vehicleEnvelope struct {
	Data   *vehicleRecord `json:"data"`
	Result *vehicleRecord `json:"result"`
}

type financialCodeEnvelope struct {
	TradeName string `json:"trade_name"`
	LegalName string `json:"legal_name"`
	GSTIN     string `json:"gstin"`
	Status    string `json:"status"`
	State     string `json:"state"`
	Address   string `json:"address"`
}

type socialProfileEnvelope struct {
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Biography string `json:"biography"`
	Followers int64  `json:"followers"`
	Following int64  `json:"following"`
	Posts     int64  `json:"posts"`
	IsPrivate bool   `json:"is_private"`
}

type networkAddressEnvelope struct {
	Query      string  `json:"query"`
	Country    string  `json:"country"`
	RegionName string  `json:"regionName"`
	City       string  `json:"city"`
	Zip        string  `json:"zip"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	ISP        string  `json:"isp"`
	Org        string  `json:"org"`
	AS         string  `json:"as"`
}

// DecodeRecords decodes a payload already classified Valid into typed
// records for the given category. Unknown fields are dropped; a
// payload that does not match the expected shape returns an error.
func DecodeRecords(category model.Category, payload []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(payload)

	switch category {
	case model.CategoryIdentity:
		return decodeIdentity(trimmed)
	case model.CategoryRelationship:
		return decodeRelationship(trimmed)
	case model.CategoryVehicle:
		return decodeVehicle(trimmed)
	case model.CategoryFinancialCode:
		return decodeFinancialCode(trimmed)
	case model.CategorySocialProfile:
		return decodeSocialProfile(trimmed)
	case model.CategoryNetworkAddress:
		return decodeNetworkAddress(trimmed)
	default:
		return nil, fmt.Errorf("decode: unknown category %q", category)
	}
}

func decodeIdentity(payload []byte) ([]Record, error) {
	var env identityEnvelope
	var list []identityRecord

	if err := json.Unmarshal(payload, &env); err == nil {
		switch {
		case len(env.Data) > 0:
			list = env.Data
		case len(env.Result) > 0:
			list = env.Result
		case len(env.Records) > 0:
			list = env.Records
		}
	}

	if list == nil {
		// Bare array, or a single direct record.
		if err := json.Unmarshal(payload, &list); err != nil {
			var one identityRecord
			if err := json.Unmarshal(payload, &one); err != nil {
				return nil, fmt.Errorf("decode identity: %w", err)
			}
			list = []identityRecord{one}
		}
	}

	records := make([]Record, 0, len(list))
	for _, in := range list {
		rec := Record{
			Name:       firstNonBlank(in.Name, in.FullName),
			FatherName: firstNonBlank(in.FatherName, in.FName),
			Address:    in.Address,
			Circle:     in.Circle,
			Phone:      firstNonBlank(in.Mobile, in.Phone),
			AltPhone:   in.AltMobile,
			Email:      in.Email,
			IDNumber:   firstNonBlank(in.IDNumber, in.Aadhaar),
		}
		if !rec.blank() {
			records = append(records, rec)
		}
	}
	return records, nil
}

func decodeRelationship(payload []byte) ([]Record, error) {
	var env relationshipEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode relationship: %w", err)
	}

	records := make([]Record, 0, len(env.Data))
	for _, in := range env.Data {
		rec := Record{
			Name:    in.Name,
			Address: in.Address,
			Extra:   map[string]string{},
		}
		if in.Relation != "" {
			rec.Extra["relation"] = in.Relation
		}
		if in.Age != "" {
			rec.Extra["age"] = in.Age
		}
		if !rec.blank() {
			records = append(records, rec)
		}
	}
	return records, nil
}

func decodeVehicle(payload []byte) ([]Record, error) {
	var env vehicleEnvelope
	var in *vehicleRecord

	if err := json.Unmarshal(payload, &env); err == nil {
		if env.Data != nil {
			in = env.Data
		} else if env.Result != nil {
			in = env.Result
		}
	}
	if in == nil {
		var direct vehicleRecord
		if err := json.Unmarshal(payload, &direct); err != nil {
			return nil, fmt.Errorf("decode vehicle: %w", err)
		}
		in = &direct
	}

	rec := Record{
		Name:       in.OwnerName,
		FatherName: in.FatherName,
		Address:    in.Address,
		IDNumber:   in.RegNo,
		Extra:      map[string]string{},
	}
	putExtra(rec.Extra, "model", in.Model)
	putExtra(rec.Extra, "fuel_type", in.FuelType)
	putExtra(rec.Extra, "reg_date", in.RegDate)
	putExtra(rec.Extra, "rto", in.RTO)
	putExtra(rec.Extra, "insurance_upto", in.InsuranceUpt)

	if rec.blank() {
		return nil, nil
	}
	return []Record{rec}, nil
}

func decodeFinancialCode(payload []byte) ([]Record, error) {
	var env financialCodeEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode financial code: %w", err)
	}

	rec := Record{
		Name:     firstNonBlank(env.TradeName, env.LegalName),
		Address:  env.Address,
		IDNumber: env.GSTIN,
		Extra:    map[string]string{},
	}
	putExtra(rec.Extra, "legal_name", env.LegalName)
	putExtra(rec.Extra, "status", env.Status)
	putExtra(rec.Extra, "state", env.State)

	if rec.blank() {
		return nil, nil
	}
	return []Record{rec}, nil
}

func decodeSocialProfile(payload []byte) ([]Record, error) {
	var env socialProfileEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode social profile: %w", err)
	}

	rec := Record{
		Name:  firstNonBlank(env.FullName, env.Username),
		Extra: map[string]string{},
	}
	putExtra(rec.Extra, "username", env.Username)
	putExtra(rec.Extra, "biography", env.Biography)
	if env.Followers > 0 || env.Following > 0 || env.Posts > 0 {
		rec.Extra["followers"] = fmt.Sprintf("%d", env.Followers)
		rec.Extra["following"] = fmt.Sprintf("%d", env.Following)
		rec.Extra["posts"] = fmt.Sprintf("%d", env.Posts)
	}
	if env.IsPrivate {
		rec.Extra["private"] = "yes"
	}

	if rec.blank() {
		return nil, nil
	}
	return []Record{rec}, nil
}

func decodeNetworkAddress(payload []byte) ([]Record, error) {
	var env networkAddressEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode network address: %w", err)
	}

	rec := Record{
		Name:    env.Query,
		Address: joinNonBlank(", ", env.City, env.RegionName, env.Country, env.Zip),
		Extra:   map[string]string{},
	}
	putExtra(rec.Extra, "isp", env.ISP)
	putExtra(rec.Extra, "org", env.Org)
	putExtra(rec.Extra, "as", env.AS)
	if env.Lat != 0 || env.Lon != 0 {
		rec.Extra["location"] = fmt.Sprintf("%.4f,%.4f", env.Lat, env.Lon)
	}

	if rec.blank() {
		return nil, nil
	}
	return []Record{rec}, nil
}

func (r Record) blank() bool {
	if r.Name != "" || r.FatherName != "" || r.Address != "" || r.Circle != "" ||
		r.Phone != "" || r.AltPhone != "" || r.Email != "" || r.IDNumber != "" {
		return false
	}
	return len(r.Extra) == 0
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func joinNonBlank(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}

func putExtra(extra map[string]string, key, value string) {
	if strings.TrimSpace(value) != "" {
		extra[key] = value
	}
}
