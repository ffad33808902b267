package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"portal-service/internal/models"
)

// MergeJSON overlays overrides onto dst, a pointer to a JSON-tagged struct.
// Keys unknown to dst are dropped.
func MergeJSON(dst interface{}, overrides map[string]interface{}) error {
	if len(overrides) == 0 {
		return nil
	}
	current, err := json.Marshal(dst)
	if err != nil {
		return fmt.Errorf("marshal current: %w", err)
	}
	fields := map[string]interface{}{}
	if err := json.Unmarshal(current, &fields); err != nil {
		return fmt.Errorf("unmarshal current: %w", err)
	}
	for k, v := range overrides {
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal merged: %w", err)
	}
	if err := json.Unmarshal(merged, dst); err != nil {
		return fmt.Errorf("apply merged: %w", err)
	}
	return nil
}

// MergeAttributes copies src over dst, allocating dst when nil.
func MergeAttributes(dst, src map[string]interface{}) map[string]interface{} {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// BlockError names an override block whose values do not fit its record.
type BlockError struct {
	Block string
	Err   error
}

// InvalidOverrides trial-merges every block of effective onto an empty record
// of its type and returns the blocks that fail, ordered by block name.
func InvalidOverrides(effective models.EffectiveFields) []BlockError {
	checks := map[string]struct {
		overrides map[string]interface{}
		target    func() interface{}
	}{
		models.BlockPersonalInfo:        {effective.PersonalInfo, func() interface{} { return &models.PersonalInfo{} }},
		models.BlockContactInfo:         {effective.ContactInfo, func() interface{} { return &models.ContactInfo{} }},
		models.BlockProfessionalDetails: {effective.ProfessionalDetails, func() interface{} { return &models.ProfessionalDetails{} }},
		models.BlockSubscriptionDetails: {effective.SubscriptionDetails, func() interface{} { return &models.SubscriptionDetails{} }},
	}

	var bad []BlockError
	for block, c := range checks {
		if err := MergeJSON(c.target(), c.overrides); err != nil {
			bad = append(bad, BlockError{Block: block, Err: err})
		}
	}
	sort.Slice(bad, func(i, j int) bool { return bad[i].Block < bad[j].Block })
	return bad
}
