// Package monitor orchestrates scan cycles: fetch a transaction window,
// run the detectors per creator, score every creator, dispatch automated
// actions, and notify operators.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marketsafe/kestrel/internal/anomaly"
	"github.com/marketsafe/kestrel/internal/domain"
	"github.com/marketsafe/kestrel/internal/rules"
	"github.com/marketsafe/kestrel/internal/scoring"
)

// Deps are the collaborators a Monitor is built from. Ledger, Evaluator,
// Detector and Scorer are required; the rest are optional and simply
// skipped when nil.
type Deps struct {
	Ledger    domain.Ledger
	Accounts  domain.Accounts
	Evaluator *rules.Evaluator
	Engine    *rules.Engine
	Baseline  rules.BaselineRateFn
	Detector  *anomaly.Detector
	Scorer    *scoring.Scorer
	Notifier  domain.Notifier
	Enforcer  domain.Enforcer
	Bus       domain.EventBus
}

// Monitor runs the scan-then-act pipeline. It holds no state between
// invocations; every cycle starts from a fresh ledger window.
type Monitor struct {
	deps Deps
	cfg  domain.MonitorConfig

	// Now is the clock used for window boundaries. Overridable in tests.
	Now func() time.Time
}

// New creates a monitor.
func New(deps Deps, cfg domain.MonitorConfig) *Monitor {
	if cfg.AnalysisWindowHours <= 0 {
		cfg.AnalysisWindowHours = 168
	}
	if cfg.MonitorWindowHours <= 0 {
		cfg.MonitorWindowHours = 24
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Monitor{
		deps: deps,
		cfg:  cfg,
		Now:  time.Now,
	}
}

// Analyze is the read-only entry point: it runs rules, anomaly detection
// and scoring over the analysis window (7 days by default) without any
// side effects.
func (m *Monitor) Analyze(ctx context.Context) (*domain.AnalysisReport, error) {
	_, byCreator, err := m.fetchWindow(ctx, m.cfg.AnalysisWindowHours)
	if err != nil {
		return nil, err
	}

	alerts, activities, scores := m.runDetectors(ctx, byCreator)

	return &domain.AnalysisReport{
		Alerts:               alerts,
		SuspiciousActivities: activities,
		FraudScores:          scores,
	}, nil
}

// RunCycle is the full monitoring entry point: one scan over the monitor
// window (24 hours by default) plus action dispatch and notification.
// Only the window fetch is fatal; every other failure degrades to a
// partial report.
func (m *Monitor) RunCycle(ctx context.Context) (*domain.MonitorReport, error) {
	start := m.Now()

	window, byCreator, err := m.fetchWindow(ctx, m.cfg.MonitorWindowHours)
	if err != nil {
		return nil, err
	}

	alerts, activities, scores := m.runDetectors(ctx, byCreator)
	findings := collectFindings(alerts, activities, scores)

	actions := m.dispatchActions(ctx, findings)
	m.notify(ctx, findings)
	m.publishAlerts(ctx, alerts)

	highRisk := 0
	for _, score := range scores {
		if score.RiskLevel == domain.RiskHigh || score.RiskLevel == domain.RiskCritical {
			highRisk++
		}
	}

	report := &domain.MonitorReport{
		Alerts:               alerts,
		SuspiciousActivities: activities,
		FraudScores:          scores,
		Stats: domain.ScanStats{
			TransactionsScanned: len(window),
			CreatorsAnalyzed:    len(byCreator),
			AlertsGenerated:     len(alerts),
			HighRiskCreators:    highRisk,
			ActionsTaken:        len(actions),
		},
		ActionsTaken: actions,
	}

	m.publishReport(ctx, report)

	slog.Info("monitoring cycle complete",
		"transactions", report.Stats.TransactionsScanned,
		"creators", report.Stats.CreatorsAnalyzed,
		"alerts", report.Stats.AlertsGenerated,
		"high_risk", report.Stats.HighRiskCreators,
		"actions", report.Stats.ActionsTaken,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return report, nil
}

// fetchWindow pulls the trailing window from the ledger. This is the one
// fatal failure point: with no data there is nothing to analyze.
func (m *Monitor) fetchWindow(ctx context.Context, hours int) ([]*domain.Transaction, map[string][]*domain.Transaction, error) {
	now := m.Now().UTC()
	since := now.Add(-time.Duration(hours) * time.Hour)

	window, err := m.deps.Ledger.ListTransactions(ctx, since, now, "")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch transaction window: %w", err)
	}

	return window, domain.GroupByCreator(window), nil
}

// runDetectors fans out per-creator evaluation over a bounded worker
// pool, then runs the cross-creator correlation after all per-creator
// work has completed.
func (m *Monitor) runDetectors(ctx context.Context, byCreator map[string][]*domain.Transaction) ([]*domain.Alert, []*domain.SuspiciousActivity, []*domain.FraudScore) {
	var (
		mu         sync.Mutex
		alerts     []*domain.Alert
		activities []*domain.SuspiciousActivity
		scores     []*domain.FraudScore
	)

	sem := make(chan struct{}, m.cfg.Concurrency)
	var wg sync.WaitGroup

	for creatorID, txs := range byCreator {
		wg.Add(1)
		go func(creatorID string, txs []*domain.Transaction) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			creatorAlerts := m.deps.Evaluator.Evaluate(ctx, creatorID, txs)
			creatorAlerts = append(creatorAlerts, m.evaluateCustomRules(ctx, creatorID, txs)...)
			creatorActivities := m.deps.Detector.Detect(creatorID, txs)
			score := m.deps.Scorer.Score(ctx, creatorID, txs)

			mu.Lock()
			alerts = append(alerts, creatorAlerts...)
			activities = append(activities, creatorActivities...)
			scores = append(scores, score)
			mu.Unlock()
		}(creatorID, txs)
	}

	wg.Wait()

	// Correlation needs every creator's data, so it runs after the
	// per-creator fan-out has drained.
	alerts = append(alerts, m.deps.Detector.CrossCreatorAlerts(byCreator)...)

	sort.Slice(scores, func(i, j int) bool {
		return scores[i].CreatorID < scores[j].CreatorID
	})

	return alerts, activities, scores
}

// evaluateCustomRules builds the creator snapshot and runs the CEL
// engine. Collaborator failures degrade the snapshot inputs to zero.
func (m *Monitor) evaluateCustomRules(ctx context.Context, creatorID string, txs []*domain.Transaction) []*domain.Alert {
	if m.deps.Engine == nil || m.deps.Engine.RulesCount() == 0 {
		return nil
	}

	ageDays := 0
	if m.deps.Accounts != nil {
		if createdAt, err := m.deps.Accounts.GetAccountCreatedAt(ctx, creatorID); err == nil {
			ageDays = int(m.Now().UTC().Sub(createdAt).Hours() / 24)
			if ageDays < 0 {
				ageDays = 0
			}
		}
	}

	rate := 0.0
	if m.deps.Baseline != nil {
		if r, err := m.deps.Baseline(ctx, creatorID); err == nil {
			rate = r
		}
	}

	return m.deps.Engine.EvaluateCreator(ctx, rules.Snapshot(creatorID, txs, ageDays, rate))
}

// finding normalizes alerts, activities and scores into one severity
// stream for dispatch and notification.
type finding struct {
	severity    domain.Severity
	description string
	creatorID   string
	action      domain.Action
}

func collectFindings(alerts []*domain.Alert, activities []*domain.SuspiciousActivity, scores []*domain.FraudScore) []finding {
	var findings []finding

	for _, alert := range alerts {
		action := alert.AutoAction
		if action == "" {
			action = domain.ActionFlag
		}
		findings = append(findings, finding{
			severity:    alert.Severity,
			description: alert.Description,
			creatorID:   alert.CreatorID,
			action:      action,
		})
	}

	for _, activity := range activities {
		findings = append(findings, finding{
			severity:    domain.RiskLevelForScore(activity.RiskScore).Severity(),
			description: activity.Description,
			creatorID:   activity.CreatorID,
			action:      domain.ActionFlag,
		})
	}

	for _, score := range scores {
		severity := score.RiskLevel.Severity()
		if severity.Rank() < domain.SeverityHigh.Rank() {
			continue
		}
		findings = append(findings, finding{
			severity:    severity,
			description: fmt.Sprintf("fraud score %.0f (%s)", score.OverallScore, score.RiskLevel),
			creatorID:   score.CreatorID,
			action:      domain.ActionFlag,
		})
	}

	return findings
}

// dispatchActions applies the recommended mitigation for every critical
// finding. Enforcement failures are logged and excluded from the action
// log; they never abort the cycle.
func (m *Monitor) dispatchActions(ctx context.Context, findings []finding) []domain.ActionRecord {
	if m.deps.Enforcer == nil {
		return nil
	}

	var records []domain.ActionRecord
	for _, f := range findings {
		if f.severity != domain.SeverityCritical {
			continue
		}

		confirmation, err := m.deps.Enforcer.ApplyAction(ctx, f.creatorID, f.action)
		if err != nil {
			slog.Error("failed to apply action",
				"creator_id", f.creatorID,
				"action", f.action,
				"error", err,
			)
			continue
		}

		record := domain.ActionRecord{
			CreatorID: f.creatorID,
			Action:    f.action,
			Detail:    confirmation,
			AppliedAt: m.Now().UTC(),
		}
		records = append(records, record)
		m.publish(ctx, domain.TopicAction, record)
	}

	return records
}

// notify sends exactly one batched notification covering every high and
// critical finding. Send failures are logged, never fatal.
func (m *Monitor) notify(ctx context.Context, findings []finding) {
	if m.deps.Notifier == nil {
		return
	}

	var lines []string
	for _, f := range findings {
		if f.severity.Rank() < domain.SeverityHigh.Rank() {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s (Creator: %s)", strings.ToUpper(string(f.severity)), f.description, f.creatorID))
	}
	if len(lines) == 0 {
		return
	}

	subject := fmt.Sprintf("Kestrel: %d findings require review", len(lines))
	body := strings.Join(lines, "\n")

	if err := m.deps.Notifier.SendBatchAlert(ctx, subject, body); err != nil {
		slog.Error("failed to send batch notification",
			"findings", len(lines),
			"error", err,
		)
	}
}

func (m *Monitor) publishAlerts(ctx context.Context, alerts []*domain.Alert) {
	for _, alert := range alerts {
		m.publish(ctx, domain.TopicAlert, alert)
	}
}

func (m *Monitor) publishReport(ctx context.Context, report *domain.MonitorReport) {
	m.publish(ctx, domain.TopicReport, report)
}

func (m *Monitor) publish(ctx context.Context, topic string, payload any) {
	if m.deps.Bus == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal event payload", "topic", topic, "error", err)
		return
	}
	if err := m.deps.Bus.Publish(ctx, topic, data); err != nil {
		slog.Error("failed to publish event", "topic", topic, "error", err)
	}
}
