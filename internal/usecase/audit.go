package usecase

import (
	"context"
	"fmt"
	"time"

	"rolerag/internal/domain"
	"rolerag/internal/policy"
)

// DefaultAuditQueries cover each department's typical vocabulary.
var DefaultAuditQueries = []string{
	"revenue", "budget", "quarterly report",
	"campaign", "brand", "market share",
	"architecture", "deployment", "incident",
	"leave policy", "payroll", "onboarding",
	"office hours", "handbook", "holidays",
}

// RoleAudit summarizes the queries run for one role.
type RoleAudit struct {
	Role        domain.Role
	Queries     int
	NoData      int
	Fallbacks   int
	Chunks      int
	TopScoreSum float64
	Latency     time.Duration
	Leaks       []string
}

// AvgTopScore is the mean best score over queries that returned data.
func (a RoleAudit) AvgTopScore() float64 {
	answered := a.Queries - a.NoData
	if answered == 0 {
		return 0
	}
	return a.TopScoreSum / float64(answered)
}

// AvgLatency is the mean retrieval time per query.
func (a RoleAudit) AvgLatency() time.Duration {
	if a.Queries == 0 {
		return 0
	}
	return a.Latency / time.Duration(a.Queries)
}

// AuditReport is the result of Audit, one entry per role in domain.Roles
// order.
type AuditReport struct {
	Roles []RoleAudit
}

// Leaks returns every leak found across roles.
func (r *AuditReport) Leaks() []string {
	var leaks []string
	for _, a := range r.Roles {
		leaks = append(leaks, a.Leaks...)
	}
	return leaks
}

// Audit runs every query as every role against the live index and checks
// each returned chunk against the access policy.
func Audit(ctx context.Context, retriever *Retriever, queries []string) (*AuditReport, error) {
	if len(queries) == 0 {
		queries = DefaultAuditQueries
	}

	report := &AuditReport{}
	for _, role := range domain.Roles {
		access := policy.AccessPolicy(role)
		audit := RoleAudit{Role: role}

		for _, q := range queries {
			start := time.Now()
			result, err := retriever.Retrieve(ctx, string(role), q)
			audit.Latency += time.Since(start)
			if err != nil {
				return nil, fmt.Errorf("audit %s %q: %w", role, q, err)
			}

			audit.Queries++
			if result.UsedFallback {
				audit.Fallbacks++
			}
			if result.NoData {
				audit.NoData++
				continue
			}
			audit.Chunks += len(result.Chunks)
			audit.TopScoreSum += result.Chunks[0].Score

			for _, c := range result.Chunks {
				if access.Kind != policy.Unfiltered && c.Chunk.Department != access.Tag() {
					audit.Leaks = append(audit.Leaks, fmt.Sprintf("role %s query %q returned %s chunk %s (%s)",
						role, q, c.Chunk.Department, c.Chunk.ID, c.Chunk.SourcePath))
				}
			}
		}
		report.Roles = append(report.Roles, audit)
	}
	return report, nil
}
