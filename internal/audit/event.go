package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"
)

// Event types emitted by the auth flows.
const (
	EventOTPRequested    = "otp_requested"
	EventOTPVerified     = "otp_verified"
	EventOTPRejected     = "otp_rejected"
	EventOTPRateLimited  = "otp_rate_limited"
	EventLoginSucceeded  = "login_succeeded"
	EventLoginBlocked    = "login_blocked"
	EventTokenRefreshed  = "token_refreshed"
	EventRefreshRejected = "refresh_rejected"
	EventLogout          = "logout"
)

// Event is one security-relevant occurrence. Emails are recorded as-is;
// codes and token values never are.
type Event struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Email      string    `json:"email,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	DeviceID   string    `json:"device_id,omitempty"`
	SourceIP   string    `json:"source_ip,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Bucket     int       `json:"bucket"`
	DateBucket string    `json:"date_bucket"`
	OccurredAt time.Time `json:"occurred_at"`
}

const eventBuckets = 64

// NewEvent stamps identity, time and bucket fields. Bucketing keeps
// downstream analytics partitions evenly loaded regardless of which
// addresses are active.
func NewEvent(eventType, email, userID, deviceID, sourceIP, detail string) *Event {
	now := time.Now().UTC()

	key := email
	if key == "" {
		key = userID
	}

	return &Event{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		Email:      email,
		UserID:     userID,
		DeviceID:   deviceID,
		SourceIP:   sourceIP,
		Detail:     detail,
		Bucket:     int(murmur3.Sum64([]byte(key)) % eventBuckets),
		DateBucket: now.Format("2006-01-02"),
		OccurredAt: now,
	}
}
