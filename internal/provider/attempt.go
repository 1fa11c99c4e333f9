package provider

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/lookupd/lookupd/internal/config"
	"github.com/lookupd/lookupd/internal/model"
)

// queryPlaceholder marks where the user query interpolates into a URL
// template.
const queryPlaceholder = "{query}"

// Attempt is one candidate endpoint/credential pair in a lookup plan.
// Failover policy lives in the plan, not in transport code: the driver
// walks the attempts in order and the plan decides what "in order"
// means for each category.
type Attempt struct {
	Name     string // endpoint label for logs and metrics
	URL      string // template containing {query}
	Method   string // http.MethodGet or http.MethodPost
	Token    string // optional credential, sent as a bearer header
	PostJSON bool   // POST with {"query": ...} body instead of URL interpolation
}

// BuildURL interpolates the escaped query into the template.
func (a Attempt) BuildURL(query string) string {
	return strings.ReplaceAll(a.URL, queryPlaceholder, url.QueryEscape(query))
}

// Plans maps each category to its ordered candidate list. Identity gets
// the full endpoint x credential cross product; every other category
// has at most one fixed attempt, so a failure there is terminal.
type Plans map[model.Category][]Attempt

// NewPlans builds the attempt plans from configuration.
func NewPlans(cfg *config.Config) Plans {
	plans := make(Plans)

	identityURLs := cfg.GetIdentityLookupURLs()
	tokens := cfg.GetIdentityTokens()
	var identity []Attempt
	for i, endpoint := range identityURLs {
		if len(tokens) == 0 {
			identity = append(identity, Attempt{
				Name:   attemptName("identity", i, 0),
				URL:    endpoint,
				Method: "GET",
			})
			continue
		}
		for j, token := range tokens {
			identity = append(identity, Attempt{
				Name:   attemptName("identity", i, j),
				URL:    endpoint,
				Method: "GET",
				Token:  token,
			})
		}
	}
	plans[model.CategoryIdentity] = identity

	single := []struct {
		category model.Category
		url      string
	}{
		{model.CategoryRelationship, cfg.RelationshipURL},
		{model.CategoryVehicle, cfg.VehicleURL},
		{model.CategoryFinancialCode, cfg.FinancialCodeURL},
		{model.CategorySocialProfile, cfg.SocialProfileURL},
		{model.CategoryNetworkAddress, cfg.NetworkAddressURL},
	}
	for _, s := range single {
		if s.url == "" {
			continue
		}
		plans[s.category] = []Attempt{{
			Name:   string(s.category),
			URL:    s.url,
			Method: "GET",
		}}
	}

	return plans
}

func attemptName(prefix string, endpoint, credential int) string {
	return fmt.Sprintf("%s-%d.%d", prefix, endpoint, credential)
}
