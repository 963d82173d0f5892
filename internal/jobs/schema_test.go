package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/palantiri/internal/worker/domain"
)

func TestCatalogue(t *testing.T) {
	defs := Catalogue()
	require.Len(t, defs, 18)

	for i := 1; i < len(defs); i++ {
		assert.Less(t, defs[i-1].Name, defs[i].Name)
	}

	lost, ok := Lookup(DockLost)
	require.True(t, ok)
	assert.Equal(t, KindEvent, lost.Kind)
	exchange, key := lost.Route()
	assert.Equal(t, DockLost, exchange)
	assert.Empty(t, key)

	push := MustLookup(ImagePush)
	exchange, key = push.Route()
	assert.Empty(t, exchange)
	assert.Equal(t, ImagePush, key)

	_, ok = Lookup("dock.unknown")
	assert.False(t, ok)
	assert.Panics(t, func() { MustLookup("dock.unknown") })
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		job     string
		body    string
		wantErr string
		check   func(t *testing.T, payload any)
	}{
		{
			name: "health-check accepts empty object",
			job:  HealthCheck,
			body: `{}`,
		},
		{
			name: "docker-health-check with org",
			job:  DockerHealthCheck,
			body: `{"dockerHost":"http://10.0.0.1:4242","githubOrgId":12,"extra":true}`,
			check: func(t *testing.T, payload any) {
				p := payload.(*DockerHealthCheckPayload)
				assert.Equal(t, "http://10.0.0.1:4242", p.DockerHost)
				require.NotNil(t, p.GithubOrgID)
				assert.Equal(t, int64(12), *p.GithubOrgID)
			},
		},
		{
			name:    "docker-health-check without host",
			job:     DockerHealthCheck,
			body:    `{}`,
			wantErr: "dockerHost is required",
		},
		{
			name:    "on-dock-unhealthy with non uri host",
			job:     OnDockUnhealthy,
			body:    `{"host":"10.0.0.1:4242"}`,
			wantErr: "host must be an http(s) URI",
		},
		{
			name: "dock.disk.filled accepts plain host",
			job:  DockDiskFilled,
			body: `{"host":"10.0.0.1:4242"}`,
		},
		{
			name:    "image.remove requires imageTag",
			job:     ImageRemove,
			body:    `{"host":"10.0.0.1:4242"}`,
			wantErr: "imageTag is required",
		},
		{
			name: "volume.remove accepts capitalized docker field",
			job:  VolumeRemove,
			body: `{"host":"10.0.0.1:4242","volume":{"Name":"abc"}}`,
			check: func(t *testing.T, payload any) {
				assert.Equal(t, "abc", payload.(*VolumePayload).Volume.Name)
			},
		},
		{
			name:    "volume.remove without volume",
			job:     DockVolumeRemove,
			body:    `{"host":"10.0.0.1:4242"}`,
			wantErr: "volume.name is required",
		},
		{
			name: "asg.check-created with unix seconds",
			job:  ASGCheckCreated,
			body: `{"organization":{"id":1,"githubId":2,"name":"acme"},"creator":{"githubId":3,"githubUsername":"bob"},"createdAt":1700000000}`,
			check: func(t *testing.T, payload any) {
				assert.Equal(t, int64(1700000000), payload.(*OrganizationPayload).CreatedAt.Time().Unix())
			},
		},
		{
			name: "asg.check-created with RFC 3339",
			job:  ASGCheckCreated,
			body: `{"organization":{"id":1,"githubId":2,"name":"acme"},"creator":{"githubId":3,"githubUsername":"bob"},"createdAt":"2023-11-14T22:13:20Z"}`,
			check: func(t *testing.T, payload any) {
				assert.Equal(t, int64(1700000000), payload.(*OrganizationPayload).CreatedAt.Time().Unix())
			},
		},
		{
			name:    "asg.check-created with NaN createdAt",
			job:     ASGCheckCreated,
			body:    `{"organization":{"id":1,"githubId":2,"name":"acme"},"creator":{"githubId":3,"githubUsername":"bob"},"createdAt":"NaN"}`,
			wantErr: "invalid timestamp",
		},
		{
			name:    "asg.check-created with negative createdAt",
			job:     ASGCheckCreated,
			body:    `{"organization":{"id":1,"githubId":2,"name":"acme"},"creator":{"githubId":3,"githubUsername":"bob"},"createdAt":-5}`,
			wantErr: "out of range",
		},
		{
			name:    "asg.check-created missing creator",
			job:     ASGCheckCreated,
			body:    `{"organization":{"id":1,"githubId":2,"name":"acme"},"createdAt":1700000000}`,
			wantErr: "creator.githubId is required",
		},
		{
			name: "events stream disconnected accepts string org",
			job:  DockerEventsStreamDisconnected,
			body: `{"host":"http://10.0.0.1:4242","org":"42"}`,
			check: func(t *testing.T, payload any) {
				org, err := payload.(*DisconnectedPayload).Org.Int64()
				require.NoError(t, err)
				assert.Equal(t, int64(42), org)
			},
		},
		{
			name:    "not an object",
			job:     HealthCheck,
			body:    `[]`,
			wantErr: "payload must be a JSON object",
		},
		{
			name:    "malformed json",
			job:     DockLost,
			body:    `{"host":`,
			wantErr: "failed to decode payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Decode(tt.job, []byte(tt.body))
			if tt.wantErr != "" {
				require.Error(t, err)
				var verr *domain.ValidationError
				require.True(t, errors.As(err, &verr))
				assert.Equal(t, tt.job, verr.Job)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, payload)
			}
		})
	}
}

func TestDecode_UnknownJob(t *testing.T) {
	_, err := Decode("dock.unknown", []byte(`{}`))
	assert.ErrorIs(t, err, domain.ErrUnknownJob)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(DockExistsCheck, &DockPayload{Host: "http://10.0.0.1:4242"}))
	assert.NoError(t, Validate(DockExistsCheck, DockPayload{Host: "https://dock.example.com"}))

	var verr *domain.ValidationError
	err := Validate(DockExistsCheck, &HostPayload{Host: "http://10.0.0.1:4242"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "payload type")

	err = Validate(DockExistsCheck, (*DockPayload)(nil))
	require.ErrorAs(t, err, &verr)

	err = Validate(DockExistsCheck, nil)
	require.ErrorAs(t, err, &verr)

	err = Validate(ImagePush, &ImagePayload{Host: "h"})
	require.ErrorAs(t, err, &verr)

	assert.ErrorIs(t, Validate("nope", &Empty{}), domain.ErrUnknownJob)
}

func TestTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "seconds", input: `1700000000`, want: 1700000000},
		{name: "milliseconds", input: `1700000000123`, want: 1700000000},
		{name: "numeric string", input: `"1700000000"`, want: 1700000000},
		{name: "rfc3339", input: `"2023-11-14T22:13:20Z"`, want: 1700000000},
		{name: "garbage", input: `"yesterday"`, wantErr: true},
		{name: "nan string", input: `"NaN"`, wantErr: true},
		{name: "infinity string", input: `"Inf"`, wantErr: true},
		{name: "overflowing number", input: `1e300`, wantErr: true},
		{name: "negative seconds", input: `-5`, wantErr: true},
		{name: "before epoch rfc3339", input: `"1969-12-31T23:59:55Z"`, wantErr: true},
		{name: "largest milliseconds", input: `9007199254740991`, want: 9007199254740},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			err := ts.UnmarshalJSON([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, int64(ts))
		})
	}

	now := time.Unix(1700000000, 0)
	assert.True(t, NewTimestamp(now).Time().Equal(now))
}
