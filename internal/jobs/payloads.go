package jobs

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DockScoped is implemented by payloads that concern a single dock
type DockScoped interface {
	DockHost() string
}

// Empty is the payload of jobs without fields
type Empty struct{}

// DockerHealthCheckPayload asks for a diagnostic run on one dock
type DockerHealthCheckPayload struct {
	DockerHost  string `json:"dockerHost" validate:"required,httpuri"`
	GithubOrgID *int64 `json:"githubOrgId,omitempty"`
}

func (p *DockerHealthCheckPayload) DockHost() string { return p.DockerHost }

// DockPayload identifies a dock by its API URI
type DockPayload struct {
	Host        string `json:"host" validate:"required,httpuri"`
	GithubOrgID *int64 `json:"githubOrgId,omitempty"`
}

func (p *DockPayload) DockHost() string { return p.Host }

// HostPayload identifies a dock by a plain host string
type HostPayload struct {
	Host string `json:"host" validate:"required"`
}

func (p *HostPayload) DockHost() string { return p.Host }

// ImagePayload targets one image on a dock. ImageTag may be an image id.
type ImagePayload struct {
	ImageTag string `json:"imageTag" validate:"required"`
	Host     string `json:"host" validate:"required"`
}

func (p *ImagePayload) DockHost() string { return p.Host }

// Volume names a docker volume
type Volume struct {
	Name string `json:"name" validate:"required"`
}

// VolumePayload targets one volume on a dock
type VolumePayload struct {
	Host   string `json:"host" validate:"required"`
	Volume Volume `json:"volume"`
}

func (p *VolumePayload) DockHost() string { return p.Host }

// Organization is a customer organization
type Organization struct {
	ID                int64  `json:"id" validate:"required"`
	GithubID          int64  `json:"githubId" validate:"required"`
	Name              string `json:"name" validate:"required"`
	IsPersonalAccount bool   `json:"isPersonalAccount"`
}

// Creator is the user that created an organization
type Creator struct {
	GithubID       int64  `json:"githubId" validate:"required"`
	GithubUsername string `json:"githubUsername" validate:"required"`
}

// OrganizationPayload describes a newly created organization
type OrganizationPayload struct {
	Organization Organization `json:"organization"`
	Creator      Creator      `json:"creator"`
	CreatedAt    Timestamp    `json:"createdAt" validate:"required"`
}

// DisconnectedPayload reports a lost docker event stream for a dock
type DisconnectedPayload struct {
	Host string      `json:"host" validate:"required,httpuri"`
	Org  json.Number `json:"org" validate:"required"`
}

func (p *DisconnectedPayload) DockHost() string { return p.Host }

// millisecondsThreshold separates unix seconds from unix milliseconds.
const millisecondsThreshold = 100_000_000_000

// maxTimestamp is the first float64 that no longer converts to an int64.
const maxTimestamp = float64(math.MaxInt64)

// Timestamp is a unix time in seconds. It decodes from a JSON number,
// a numeric string or an RFC 3339 string and encodes as a number.
type Timestamp int64

// NewTimestamp converts t to a Timestamp
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.Unix())
}

// Time returns the timestamp as a time.Time
func (ts Timestamp) Time() time.Time {
	return time.Unix(int64(ts), 0)
}

// UnmarshalJSON implements json.Unmarshaler
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			if t.Unix() < 0 {
				return fmt.Errorf("invalid timestamp %s: before unix epoch", string(data))
			}
			*ts = NewTimestamp(t)
			return nil
		}
	}

	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("invalid timestamp %s", string(data))
	}
	if n < 0 || n >= maxTimestamp {
		return fmt.Errorf("invalid timestamp %s: out of range", string(data))
	}
	v := int64(n)
	if v > millisecondsThreshold {
		v /= 1000
	}
	*ts = Timestamp(v)
	return nil
}
