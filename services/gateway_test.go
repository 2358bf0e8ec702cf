package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"portaria-backend/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type fakeSNS struct {
	mu        sync.Mutex
	published []string // target ARNs, in order
	failARNs  map[string]error
	created   []string // platform application ARNs
}

func (f *fakeSNS) Publish(ctx context.Context, in *awssns.PublishInput, _ ...func(*awssns.Options)) (*awssns.PublishOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	arn := aws.ToString(in.TargetArn)
	f.published = append(f.published, arn)
	if err, ok := f.failARNs[arn]; ok {
		return nil, err
	}
	return &awssns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func (f *fakeSNS) CreatePlatformEndpoint(ctx context.Context, in *awssns.CreatePlatformEndpointInput, _ ...func(*awssns.Options)) (*awssns.CreatePlatformEndpointOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, aws.ToString(in.PlatformApplicationArn))
	return &awssns.CreatePlatformEndpointOutput{
		EndpointArn: aws.String("arn:endpoint:" + aws.ToString(in.Token)),
	}, nil
}

type fakeInvalidator struct {
	mu     sync.Mutex
	tokens []string
}

func (f *fakeInvalidator) Invalidate(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	return nil
}

func testGateway(t *testing.T, sns *fakeSNS, inv Invalidator) *PushGateway {
	t.Helper()
	t.Setenv("SNS_FCM_ARN", "arn:app:fcm")
	t.Setenv("SNS_APNS_ARN", "arn:app:apns")
	t.Setenv("SNS_APNS_SANDBOX_ARN", "arn:app:apns-sandbox")
	t.Setenv("SNS_APNS_VOIP_ARN", "arn:app:voip")
	t.Setenv("SNS_APNS_VOIP_SANDBOX_ARN", "arn:app:voip-sandbox")
	return NewPushGateway(sns, inv)
}

func TestSendBestEffortFanOut(t *testing.T) {
	sns := &fakeSNS{failARNs: map[string]error{
		"arn:ep:2": errors.New("throttled"),
	}}
	g := testGateway(t, sns, nil)

	eps := []models.DeviceEndpoint{
		{Token: "t1", EndpointARN: "arn:ep:1", Enabled: true},
		{Token: "t2", EndpointARN: "arn:ep:2", Enabled: true},
		{Token: "t3", EndpointARN: "arn:ep:3", Enabled: false}, // must be skipped
		{Token: "t4", EndpointARN: "arn:ep:4", Enabled: true},
	}

	res := g.Send(context.Background(), eps, PushPayload{Title: "hi", Body: "there"})
	if res.Sent != 2 || res.Failed != 1 {
		t.Fatalf("result = %+v, want Sent=2 Failed=1", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].Token != "t2" {
		t.Fatalf("errors = %+v, want one for t2", res.Errors)
	}
	if len(sns.published) != 3 {
		t.Fatalf("published to %d targets, want 3 (disabled endpoint skipped)", len(sns.published))
	}
}

func TestSendInvalidatesDisabledEndpoint(t *testing.T) {
	sns := &fakeSNS{failARNs: map[string]error{
		"arn:ep:dead": &types.EndpointDisabledException{Message: aws.String("EndpointDisabled")},
	}}
	inv := &fakeInvalidator{}
	g := testGateway(t, sns, inv)

	eps := []models.DeviceEndpoint{
		{Token: "t-live", EndpointARN: "arn:ep:live", Enabled: true},
		{Token: "t-dead", EndpointARN: "arn:ep:dead", Enabled: true},
	}

	res := g.Send(context.Background(), eps, PushPayload{Title: "hi"})
	if res.Sent != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v, want Sent=1 Failed=1", res)
	}
	if len(inv.tokens) != 1 || inv.tokens[0] != "t-dead" {
		t.Fatalf("invalidated %v, want [t-dead]", inv.tokens)
	}
}

func TestRegisterEndpointPicksPlatformApplication(t *testing.T) {
	cases := []struct {
		name        string
		platform    string
		tokenClass  string
		environment string
		wantApp     string
	}{
		{"android", "android", models.TokenClassStandard, models.EnvProduction, "arn:app:fcm"},
		{"ios standard", "ios", models.TokenClassStandard, models.EnvProduction, "arn:app:apns"},
		{"ios sandbox", "ios", models.TokenClassStandard, models.EnvSandbox, "arn:app:apns-sandbox"},
		{"ios call", "ios", models.TokenClassCall, models.EnvProduction, "arn:app:voip"},
		{"ios call sandbox", "ios", models.TokenClassCall, models.EnvSandbox, "arn:app:voip-sandbox"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sns := &fakeSNS{}
			g := testGateway(t, sns, nil)

			arn, err := g.RegisterEndpoint(context.Background(), "tok", tc.platform, tc.tokenClass, tc.environment)
			if err != nil {
				t.Fatalf("RegisterEndpoint: %v", err)
			}
			if arn != "arn:endpoint:tok" {
				t.Fatalf("endpoint arn = %q", arn)
			}
			if len(sns.created) != 1 || sns.created[0] != tc.wantApp {
				t.Fatalf("platform app = %v, want %s", sns.created, tc.wantApp)
			}
		})
	}
}

func TestBuildSNSMessageCoversAllPlatformKeys(t *testing.T) {
	msg := buildSNSMessage(PushPayload{
		Title: "Intercom call",
		Body:  "Front desk is calling apartment 701",
		Sound: "default",
		Data: map[string]string{
			"type":        "intercom_call",
			"callId":      "c-1",
			"channelName": "intercom-10-abc",
		},
	})

	// Sandbox and VoIP endpoints must get the same structured payload as
	// production APNs, not the plain default string.
	for _, key := range []string{"APNS", "APNS_SANDBOX", "APNS_VOIP", "APNS_VOIP_SANDBOX"} {
		raw, ok := msg[key].(string)
		if !ok {
			t.Fatalf("message missing %s payload", key)
		}
		var apns map[string]any
		if err := json.Unmarshal([]byte(raw), &apns); err != nil {
			t.Fatalf("%s payload is not JSON: %v", key, err)
		}
		if apns["callId"] != "c-1" || apns["channelName"] != "intercom-10-abc" {
			t.Fatalf("%s payload dropped call data: %v", key, apns)
		}
		if _, ok := apns["aps"]; !ok {
			t.Fatalf("%s payload missing aps dictionary", key)
		}
	}

	if _, ok := msg["GCM"].(map[string]any); !ok {
		t.Fatal("message missing GCM payload")
	}
	if msg["default"] != "Front desk is calling apartment 701" {
		t.Fatalf("default body = %v", msg["default"])
	}
}

func TestRegisterEndpointUnknownPlatform(t *testing.T) {
	g := testGateway(t, &fakeSNS{}, nil)
	if _, err := g.RegisterEndpoint(context.Background(), "tok", "blackberry", models.TokenClassStandard, models.EnvProduction); err == nil {
		t.Fatal("unknown platform accepted")
	}
}
