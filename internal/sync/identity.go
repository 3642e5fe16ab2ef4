package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"feedsync/internal/models"
)

// DefaultMinConfidence is the fuzzy-match acceptance threshold used when
// the caller does not supply one.
const DefaultMinConfidence = 0.8

// MatchType describes how a customer was resolved.
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchFuzzy   MatchType = "fuzzy"
	MatchCreated MatchType = "created"
	MatchNone    MatchType = "none"
)

// ResolveOptions tune one resolveCustomer call.
type ResolveOptions struct {
	Name            string
	Email           string
	CreateIfMissing bool
	FuzzyMatch      bool
	MinConfidence   float64
}

// IdentityResult is the outcome of a resolveCustomer call. Customer is nil
// only when MatchType is MatchNone.
type IdentityResult struct {
	Customer   *models.Customer
	MatchType  MatchType
	Confidence float64
}

// IdentityResolver maps a normalized phone number, plus optional name and
// email hints, to a customer. A short-TTL cache fronts the exact phone path
// since a burst of messages from one number is the common case during sync.
type IdentityResolver struct {
	customers CustomerStore
	cache     *gocache.Cache
}

// NewIdentityResolver creates a resolver with a 5 minute phone lookup cache.
func NewIdentityResolver(customers CustomerStore) *IdentityResolver {
	return &IdentityResolver{
		customers: customers,
		cache:     gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// ResolveCustomer resolves phone (E.164) to a customer. Step order: exact
// primary phone, exact alternate phone, fuzzy name/email scoring, then
// creation when authorized by opts.CreateIfMissing.
func (r *IdentityResolver) ResolveCustomer(ctx context.Context, phone string, opts ResolveOptions) (*IdentityResult, error) {
	if phone == "" {
		return nil, fmt.Errorf("resolve customer: phone is empty")
	}

	if cached, found := r.cache.Get(phone); found {
		return &IdentityResult{Customer: cached.(*models.Customer), MatchType: MatchExact, Confidence: 1.0}, nil
	}

	customer, err := r.customers.CustomerByPrimaryPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("primary phone lookup for %s: %w", phone, err)
	}
	if customer == nil {
		customer, err = r.customers.CustomerByAltPhone(ctx, phone)
		if err != nil {
			return nil, fmt.Errorf("alternate phone lookup for %s: %w", phone, err)
		}
	}
	if customer != nil {
		r.cache.Set(phone, customer, gocache.DefaultExpiration)
		return &IdentityResult{Customer: customer, MatchType: MatchExact, Confidence: 1.0}, nil
	}

	if opts.FuzzyMatch && (opts.Name != "" || opts.Email != "") {
		minConfidence := opts.MinConfidence
		if minConfidence <= 0 {
			minConfidence = DefaultMinConfidence
		}
		match, confidence, err := r.fuzzyMatch(ctx, opts.Name, opts.Email)
		if err != nil {
			return nil, err
		}
		if match != nil && confidence >= minConfidence {
			log.Debug().
				Str("customerID", match.ID).
				Float64("confidence", confidence).
				Msg("Customer resolved by fuzzy match")
			return &IdentityResult{Customer: match, MatchType: MatchFuzzy, Confidence: confidence}, nil
		}
	}

	if !opts.CreateIfMissing {
		return &IdentityResult{MatchType: MatchNone}, nil
	}

	created, err := r.createCustomer(ctx, phone, opts)
	if err != nil {
		return nil, err
	}
	r.cache.Set(phone, created, gocache.DefaultExpiration)
	return &IdentityResult{Customer: created, MatchType: MatchCreated, Confidence: 1.0}, nil
}

// fuzzyMatch scores every candidate the store returns for the name/email
// hints and keeps the best. Signals present (name, email) are scored in
// [0,1] and averaged, not summed.
func (r *IdentityResolver) fuzzyMatch(ctx context.Context, name, email string) (*models.Customer, float64, error) {
	candidates, err := r.customers.SearchCustomers(ctx, name, email)
	if err != nil {
		return nil, 0, fmt.Errorf("fuzzy candidate search: %w", err)
	}

	var best *models.Customer
	var bestScore float64
	for i := range candidates {
		c := &candidates[i]
		score := matchConfidence(name, email, c)
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best, bestScore, nil
}

// matchConfidence averages the scores of the signals the caller supplied.
func matchConfidence(name, email string, c *models.Customer) float64 {
	var total float64
	var signals int
	if name != "" {
		total += nameScore(name, c.FullName())
		signals++
	}
	if email != "" {
		total += emailScore(email, c.Email)
		signals++
	}
	if signals == 0 {
		return 0
	}
	return total / float64(signals)
}

// nameScore is 1.0 for an exact full-name match and otherwise the fraction
// of query tokens present in the candidate name.
func nameScore(query, candidate string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	c := strings.ToLower(strings.TrimSpace(candidate))
	if q == "" || c == "" {
		return 0
	}
	if q == c {
		return 1.0
	}
	queryTokens := strings.Fields(q)
	candidateTokens := strings.Fields(c)
	if len(queryTokens) == 0 {
		return 0
	}
	present := make(map[string]bool, len(candidateTokens))
	for _, t := range candidateTokens {
		present[t] = true
	}
	matched := 0
	for _, t := range queryTokens {
		if present[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

// emailScore is 1.0 for an exact match and 0.6 for a substring overlap.
func emailScore(query, candidate string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	c := strings.ToLower(strings.TrimSpace(candidate))
	if q == "" || c == "" {
		return 0
	}
	if q == c {
		return 1.0
	}
	if strings.Contains(c, q) || strings.Contains(q, c) {
		return 0.6
	}
	return 0
}

// createCustomer creates a new customer record, with placeholder name
// fields when the provider supplied none.
func (r *IdentityResolver) createCustomer(ctx context.Context, phone string, opts ResolveOptions) (*models.Customer, error) {
	first, last := splitName(opts.Name)
	if first == "" {
		first = "Unknown"
		last = phone
	}
	now := time.Now().UTC()
	customer := &models.Customer{
		ID:           uuid.NewString(),
		FirstName:    first,
		LastName:     last,
		Email:        opts.Email,
		PrimaryPhone: phone,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.customers.CreateCustomer(ctx, customer); err != nil {
		return nil, fmt.Errorf("create customer for %s: %w", phone, err)
	}
	log.Info().
		Str("customerID", customer.ID).
		Str("phone", phone).
		Msg("Created new customer from external message")
	return customer, nil
}

func splitName(full string) (string, string) {
	fields := strings.Fields(strings.TrimSpace(full))
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}
