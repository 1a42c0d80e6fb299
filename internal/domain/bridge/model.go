package bridge

import (
	"errors"
	"time"
)

// Bridge roles. A hospital-side service registers as the role it plays in an
// exchange; a facility acting as both registers twice under distinct ids.
const (
	RoleHIP = "HIP"
	RoleHIU = "HIU"
)

// Bridge statuses. Bridges are never physically deleted, only suspended.
const (
	StatusActive    = "ACTIVE"
	StatusSuspended = "SUSPENDED"
)

var (
	ErrDuplicateBridge = errors.New("bridge already registered")
	ErrUnknownBridge   = errors.New("unknown bridge")
	ErrBridgeSuspended = errors.New("bridge is suspended")
)

// Bridge maps to the bridge table: a registered hospital-side endpoint with
// the callback URL the gateway delivers asynchronous calls to.
type Bridge struct {
	BridgeID    string    `db:"bridge_id" json:"bridgeId"`
	Role        string    `db:"role" json:"role"`
	CallbackURL string    `db:"callback_url" json:"callbackUrl"`
	Services    []string  `db:"services" json:"services"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}
