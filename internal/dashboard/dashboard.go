// Package dashboard aggregates statistics from every service for the admin
// dashboard.
package dashboard

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/masivos/admin-gateway/internal/apiclient"
	"github.com/masivos/admin-gateway/internal/pkg/logger"
	"github.com/masivos/admin-gateway/internal/pkg/metrics"
)

// Source is the subset of the service API client used by the dashboard.
type Source interface {
	GetContactStats(ctx context.Context, params apiclient.Params) (*apiclient.ContactStats, error)
	GetCampaignStats(ctx context.Context, params apiclient.Params) (*apiclient.CampaignStats, error)
	GetTemplateStats(ctx context.Context, params apiclient.Params) (*apiclient.TemplateStats, error)
	GetEmailStats(ctx context.Context, params apiclient.Params) (*apiclient.EmailStats, error)

	GetContacts(ctx context.Context, params apiclient.Params) ([]apiclient.Contact, error)
	GetContactLists(ctx context.Context, params apiclient.Params) ([]apiclient.ContactList, error)
	GetTemplates(ctx context.Context, params apiclient.Params) ([]apiclient.Template, error)
	GetCampaigns(ctx context.Context, params apiclient.Params) ([]apiclient.Campaign, error)
}

// Stats is the merged dashboard statistics. Fallbacks names the sources
// that failed and were replaced by fallback values.
type Stats struct {
	Contacts  apiclient.ContactStats   `json:"contacts"`
	Campaigns apiclient.CampaignStats  `json:"campaigns"`
	Templates apiclient.TemplateStats  `json:"templates"`
	Emails    apiclient.EmailStats     `json:"emails"`
	Summary   apiclient.DashboardStats `json:"summary"`
	Fallbacks []string                 `json:"fallbacks,omitempty"`
}

// Fallback values shown when a statistics source is unavailable.
var (
	FallbackContacts = apiclient.ContactStats{TotalContacts: 1250, ActiveContacts: 1180}

	FallbackCampaigns = apiclient.CampaignStats{
		TotalCampaigns:  45,
		ActiveCampaigns: 12,
		DraftCampaigns:  8,
		SentCampaigns:   25,
	}

	FallbackTemplates = apiclient.TemplateStats{TotalTemplates: 12, ActiveTemplates: 8, DraftTemplates: 4}

	FallbackEmails = apiclient.EmailStats{
		SentEmails:      15680,
		DeliveredEmails: 14850,
		FailedEmails:    125,
		OpenRate:        0.68,
		ClickRate:       0.24,
		BounceRate:      0.03,
		StatusBreakdown: map[string]int64{"PENDING": 45},
	}
)

// Service loads dashboard data.
type Service struct {
	source Source
	userID string
}

// NewService creates a Service reading statistics of userID.
func NewService(source Source, userID string) *Service {
	return &Service{source: source, userID: userID}
}

// Stats loads the four statistics sources in parallel. Every source runs
// to completion; a failed source is logged and replaced by its fallback, so
// Stats never fails.
func (s *Service) Stats(ctx context.Context) *Stats {
	params := apiclient.Params{"userId": s.userID}
	out := &Stats{
		Contacts:  FallbackContacts,
		Campaigns: FallbackCampaigns,
		Templates: FallbackTemplates,
		Emails:    FallbackEmails,
	}

	var mu sync.Mutex
	fallback := func(source string, err error) {
		logger.Warn("dashboard: using fallback statistics", "source", source, "error", err)
		metrics.DashboardFallbacks.WithLabelValues(source).Inc()
		mu.Lock()
		out.Fallbacks = append(out.Fallbacks, source)
		mu.Unlock()
	}

	// Sources never fail the group; a failure only swaps in the fallback.
	var g errgroup.Group
	g.Go(func() error {
		if v, err := s.source.GetContactStats(ctx, params); err != nil {
			fallback("contacts", err)
		} else {
			out.Contacts = *v
		}
		return nil
	})
	g.Go(func() error {
		if v, err := s.source.GetCampaignStats(ctx, params); err != nil {
			fallback("campaigns", err)
		} else {
			out.Campaigns = *v
		}
		return nil
	})
	g.Go(func() error {
		if v, err := s.source.GetTemplateStats(ctx, params); err != nil {
			fallback("templates", err)
		} else {
			out.Templates = *v
		}
		return nil
	})
	g.Go(func() error {
		if v, err := s.source.GetEmailStats(ctx, nil); err != nil {
			fallback("emails", err)
		} else {
			out.Emails = *v
		}
		return nil
	})
	_ = g.Wait()

	sort.Strings(out.Fallbacks)
	out.Summary = summarize(out)
	return out
}

func summarize(s *Stats) apiclient.DashboardStats {
	sum := apiclient.DashboardStats{
		TotalContacts:  s.Contacts.TotalContacts,
		TotalCampaigns: s.Campaigns.TotalCampaigns,
		TotalTemplates: s.Templates.TotalTemplates,
		EmailsSent:     s.Emails.SentEmails,
		DeliveryRate:   s.Emails.DeliveryRate,
		OpenRate:       s.Emails.OpenRate,
		ClickRate:      s.Emails.ClickRate,
	}
	if sum.DeliveryRate == 0 && s.Emails.SentEmails > 0 {
		sum.DeliveryRate = float64(s.Emails.DeliveredEmails) / float64(s.Emails.SentEmails)
	}
	return sum
}

// Overview is the data behind the dashboard landing lists.
type Overview struct {
	Contacts  []apiclient.Contact     `json:"contacts"`
	Lists     []apiclient.ContactList `json:"lists"`
	Templates []apiclient.Template    `json:"templates"`
	Campaigns []apiclient.Campaign    `json:"campaigns"`
}

// Overview loads contacts, lists, templates and campaigns in parallel.
// The first failure cancels the remaining calls and fails the whole load.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	params := apiclient.Params{"userId": s.userID}
	out := &Overview{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.source.GetContacts(gctx, params)
		out.Contacts = v
		return err
	})
	g.Go(func() error {
		v, err := s.source.GetContactLists(gctx, params)
		out.Lists = v
		return err
	})
	g.Go(func() error {
		v, err := s.source.GetTemplates(gctx, params)
		out.Templates = v
		return err
	})
	g.Go(func() error {
		v, err := s.source.GetCampaigns(gctx, params)
		out.Campaigns = v
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
