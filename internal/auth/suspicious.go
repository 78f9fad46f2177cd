// Package auth holds sign-in support logic that sits between the HTTP
// handlers and the data store.
package auth

import (
	"context"
	"time"

	"github.com/compass-crm/compasscrm/internal/models"
	"gorm.io/gorm"
)

const (
	// suspicionWindow is the rolling window examined for anomalies.
	suspicionWindow = 24 * time.Hour
	// suspicionHistoryCap bounds how many recent rows are examined.
	suspicionHistoryCap = 50
	// sameIPFailureThreshold flags repeated failures from one address.
	sameIPFailureThreshold = 5
	// distinctIPThreshold flags sign-ins spread across many addresses.
	distinctIPThreshold = 3
	// rapidIPWindow is the short window for the IP churn rule.
	rapidIPWindow = 10 * time.Minute
)

// Suspicion describes the outcome of anomaly detection for a sign-in.
type Suspicion struct {
	Suspicious bool
	Reason     string
}

// DetectSuspicious inspects recent sign-in history for the account and flags
// anomalies. Rules run in order; the first match wins.
func DetectSuspicious(ctx context.Context, conn *gorm.DB, userID uint64, ip string) (Suspicion, error) {
	var rows []models.SignInHistory
	since := time.Now().UTC().Add(-suspicionWindow)
	if errFind := conn.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Order("created_at DESC").
		Limit(suspicionHistoryCap).
		Find(&rows).Error; errFind != nil {
		return Suspicion{}, errFind
	}

	failuresFromIP := 0
	distinctIPs := map[string]bool{}
	recentIPs := map[string]bool{}
	lastSuccessIP := ""
	rapidSince := time.Now().UTC().Add(-rapidIPWindow)

	for _, row := range rows {
		if row.IP != "" {
			distinctIPs[row.IP] = true
			if row.CreatedAt.After(rapidSince) {
				recentIPs[row.IP] = true
			}
		}
		if !row.Success && row.IP == ip {
			failuresFromIP++
		}
		if row.Success && lastSuccessIP == "" {
			lastSuccessIP = row.IP
		}
	}

	if failuresFromIP >= sameIPFailureThreshold {
		return Suspicion{Suspicious: true, Reason: "multiple failed attempts from same IP"}, nil
	}
	if lastSuccessIP != "" && lastSuccessIP != ip && len(distinctIPs) > distinctIPThreshold {
		return Suspicion{Suspicious: true, Reason: "new IP after multiple different IPs"}, nil
	}
	if len(recentIPs) >= distinctIPThreshold {
		return Suspicion{Suspicious: true, Reason: "multiple IPs in short time"}, nil
	}
	return Suspicion{}, nil
}

// RecordSignInAttempt appends one history row for a sign-in attempt.
// Exactly one row is written per attempt, success or failure.
func RecordSignInAttempt(ctx context.Context, conn *gorm.DB, userID uint64, ip, userAgent string, success bool, failureReason string) error {
	row := models.SignInHistory{
		UserID:        userID,
		IP:            ip,
		UserAgent:     userAgent,
		Success:       success,
		FailureReason: failureReason,
		CreatedAt:     time.Now().UTC(),
	}
	return conn.WithContext(ctx).Create(&row).Error
}
