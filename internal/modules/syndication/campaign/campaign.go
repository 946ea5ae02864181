package campaign

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/itorigin/site/internal/models"
	pkgcron "github.com/itorigin/site/internal/pkg/cron"
	pkgmail "github.com/itorigin/site/internal/pkg/mail"
	"github.com/itorigin/site/internal/pkg/metrics"
	"github.com/itorigin/site/internal/pkg/pagination"
	"github.com/itorigin/site/internal/pkg/response"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// JobName is the scheduler entry that delivers recurring campaigns.
	JobName = "send-campaigns"

	defaultBatchSize = 50
	sendConcurrency  = 4
	sendHour         = 9
	maxSubjectLen    = 191
)

var (
	ErrNotFound     = errors.New("campaign not found")
	ErrAlreadySent  = errors.New("campaign already sent")
	ErrInProgress   = errors.New("campaign is being sent")
	ErrMailDisabled = errors.New("mail delivery is not configured")
)

// ValidationError carries per-field messages for a rejected input.
type ValidationError = response.ValidationError

// Recipients yields the audience of a campaign.
type Recipients interface {
	ActiveSubscribers(ctx context.Context) ([]models.SubscriberModel, error)
	UnsubscribeURL(token string) string
}

// Sender delivers a batch of emails and reports how many were accepted.
type Sender interface {
	SendBatch(ctx context.Context, msgs []pkgmail.Message) (int, error)
}

type CreateDTO struct {
	Subject    string `json:"subject"    binding:"required"`
	Body       string `json:"body"       binding:"required"`
	Recurring  bool   `json:"recurring"`
	DayOfMonth int    `json:"dayOfMonth"`
}

type UpdateDTO struct {
	Subject    *string `json:"subject"`
	Body       *string `json:"body"`
	Recurring  *bool   `json:"recurring"`
	DayOfMonth *int    `json:"dayOfMonth"`
}

// Result summarizes one delivery run.
type Result struct {
	CampaignID string `json:"campaignId"`
	Recipients int    `json:"recipients"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
}

type Options struct {
	SiteName  string
	BatchSize int
	Location  *time.Location
	Metrics   *metrics.Metrics
}

type Service struct {
	store      Store
	recipients Recipients
	sender     Sender
	opts       Options
	logger     *zap.Logger
	now        func() time.Time
}

// NewService returns a Service. sender may be nil when mail is not configured;
// sending then fails with ErrMailDisabled.
func NewService(store Store, recipients Recipients, sender Sender, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BatchSize <= 0 || opts.BatchSize > pkgmail.MaxBatchSize {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		store:      store,
		recipients: recipients,
		sender:     sender,
		opts:       opts,
		logger:     logger.Named("campaign"),
		now:        time.Now,
	}
}

// Job is the hourly scheduler entry for recurring campaigns.
func (s *Service) Job() pkgcron.Job {
	return pkgcron.Job{
		Name:        JobName,
		Description: "Send recurring campaigns whose next run has passed",
		Interval:    time.Hour,
		Fn:          s.SendDue,
	}
}

func (s *Service) Create(ctx context.Context, dto *CreateDTO) (*models.CampaignModel, error) {
	c := &models.CampaignModel{
		Subject:    strings.TrimSpace(dto.Subject),
		Body:       dto.Body,
		Status:     models.CampaignDraft,
		Recurring:  dto.Recurring,
		DayOfMonth: dto.DayOfMonth,
	}
	if !c.Recurring && c.DayOfMonth == 0 {
		c.DayOfMonth = 1
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	s.schedule(c)
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.CampaignModel, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, status string, q pagination.Query) ([]models.CampaignModel, response.Pagination, error) {
	return s.store.List(ctx, status, pagination.Normalize(q))
}

// Update edits a campaign that has not gone out yet. Changing the recurrence
// recomputes the next run.
func (s *Service) Update(ctx context.Context, id string, dto *UpdateDTO) (*models.CampaignModel, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := editable(c); err != nil {
		return nil, err
	}

	reschedule := false
	if dto.Subject != nil {
		c.Subject = strings.TrimSpace(*dto.Subject)
	}
	if dto.Body != nil {
		c.Body = *dto.Body
	}
	if dto.Recurring != nil && *dto.Recurring != c.Recurring {
		c.Recurring = *dto.Recurring
		reschedule = true
	}
	if dto.DayOfMonth != nil && *dto.DayOfMonth != c.DayOfMonth {
		c.DayOfMonth = *dto.DayOfMonth
		reschedule = true
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	if reschedule {
		s.schedule(c)
	}
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.Status == models.CampaignSending {
		return ErrInProgress
	}
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Send delivers a campaign now. A one-off campaign goes out exactly once; a
// recurring one keeps its schedule.
func (s *Service) Send(ctx context.Context, id string) (*Result, error) {
	if s.sender == nil {
		return nil, ErrMailDisabled
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := editable(c); err != nil {
		return nil, err
	}
	ok, err := s.store.ClaimDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInProgress
	}

	final := models.CampaignSent
	if c.Recurring {
		final = models.CampaignDraft
	}
	return s.run(ctx, c, final, c.NextRunAt)
}

// SendDue delivers every recurring campaign whose next run has passed and
// moves it to the following month. Each campaign is claimed by advancing its
// next run, so concurrent callers never send the same run twice.
func (s *Service) SendDue(ctx context.Context) error {
	if s.sender == nil {
		s.logger.Debug("mail disabled, skipping due campaigns")
		return nil
	}
	now := s.now()
	due, err := s.store.Due(ctx, now)
	if err != nil {
		return err
	}

	var errs []error
	for i := range due {
		c := &due[i]
		if c.NextRunAt == nil {
			continue
		}
		prev := *c.NextRunAt
		next := nextMonthlyRun(now, c.DayOfMonth, s.opts.Location)
		ok, err := s.store.ClaimDue(ctx, c.ID, prev, next)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		c.NextRunAt = &next
		if _, err := s.run(ctx, c, models.CampaignDraft, &prev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// run delivers a claimed campaign. When the audience cannot be loaded the
// claim is released with restore as the next run. Once claimed, a campaign
// always leaves the sending state, so the caller's cancellation is dropped.
func (s *Service) run(ctx context.Context, c *models.CampaignModel, final string, restore *time.Time) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	res, err := s.deliver(ctx, c)
	if err != nil {
		s.release(ctx, c.ID, restore)
		return nil, err
	}
	if err := s.store.Finish(ctx, c.ID, final, res.Sent, res.Failed, s.now()); err != nil {
		// Mail already went out: keep the advanced schedule.
		s.logger.Error("record campaign result",
			zap.String("campaign", c.ID),
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Error(err),
		)
		s.release(ctx, c.ID, c.NextRunAt)
		return nil, fmt.Errorf("record campaign result: %w", err)
	}
	s.logger.Info("campaign delivered",
		zap.String("campaign", c.ID),
		zap.Int("recipients", res.Recipients),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *Service) release(ctx context.Context, id string, nextRunAt *time.Time) {
	if err := s.store.Release(ctx, id, nextRunAt); err != nil {
		s.logger.Error("release campaign claim", zap.String("campaign", id), zap.Error(err))
	}
}

// deliver sends personalized copies in batches. A failed batch is counted
// and the remaining batches still go out.
func (s *Service) deliver(ctx context.Context, c *models.CampaignModel) (*Result, error) {
	subs, err := s.recipients.ActiveSubscribers(ctx)
	if err != nil {
		return nil, err
	}
	msgs := make([]pkgmail.Message, 0, len(subs))
	for i := range subs {
		msgs = append(msgs, s.personalize(c, &subs[i]))
	}

	res := &Result{CampaignID: c.ID, Recipients: len(msgs)}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(sendConcurrency)
	for start := 0; start < len(msgs); start += s.opts.BatchSize {
		batch := msgs[start:min(start+s.opts.BatchSize, len(msgs))]
		g.Go(func() error {
			n, err := s.sender.SendBatch(ctx, batch)
			if n > len(batch) {
				n = len(batch)
			}
			if err != nil {
				s.logger.Warn("campaign batch failed",
					zap.String("campaign", c.ID),
					zap.Int("size", len(batch)),
					zap.Int("accepted", n),
					zap.Error(err),
				)
			}
			mu.Lock()
			res.Sent += n
			res.Failed += len(batch) - n
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.opts.Metrics.RecordCampaignEmails(ctx, res.Sent, res.Failed)
	return res, nil
}

// personalize fills the placeholders for one subscriber. Values are escaped
// in the HTML body and inserted verbatim in the subject.
func (s *Service) personalize(c *models.CampaignModel, sub *models.SubscriberModel) pkgmail.Message {
	name := sub.Name
	if name == "" {
		name = "there"
	}
	unsubscribe := s.recipients.UnsubscribeURL(sub.UnsubscribeToken)
	pairs := func(esc func(string) string) *strings.Replacer {
		return strings.NewReplacer(
			"{{name}}", esc(name),
			"{{email}}", esc(sub.Email),
			"{{unsubscribe_url}}", esc(unsubscribe),
			"{{site_name}}", esc(s.opts.SiteName),
		)
	}
	raw := func(v string) string { return v }
	return pkgmail.Message{
		To:      []string{sub.Email},
		Subject: pairs(raw).Replace(c.Subject),
		HTML:    pairs(html.EscapeString).Replace(c.Body),
	}
}

func (s *Service) schedule(c *models.CampaignModel) {
	if !c.Recurring {
		c.NextRunAt = nil
		return
	}
	next := nextMonthlyRun(s.now(), c.DayOfMonth, s.opts.Location)
	c.NextRunAt = &next
}

func editable(c *models.CampaignModel) error {
	switch c.Status {
	case models.CampaignSent:
		return ErrAlreadySent
	case models.CampaignSending:
		return ErrInProgress
	}
	return nil
}

func validate(c *models.CampaignModel) error {
	fields := map[string]string{}
	switch {
	case c.Subject == "":
		fields["subject"] = "is required"
	case utf8.RuneCountInString(c.Subject) > maxSubjectLen:
		fields["subject"] = "must be at most 191 characters"
	}
	if strings.TrimSpace(c.Body) == "" {
		fields["body"] = "is required"
	}
	if c.DayOfMonth < 1 || c.DayOfMonth > 31 {
		fields["dayOfMonth"] = "must be between 1 and 31"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// nextMonthlyRun returns the first send time strictly after after: day of
// month at 09:00 in loc, clamped to the last day of shorter months.
func nextMonthlyRun(after time.Time, day int, loc *time.Location) time.Time {
	y, m, _ := after.In(loc).Date()
	for {
		last := time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
		t := time.Date(y, m, min(day, last), sendHour, 0, 0, 0, loc)
		if t.After(after) {
			return t
		}
		m++
	}
}
