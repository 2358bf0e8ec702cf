package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"portaria-backend/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// Sender fans one payload out to a set of device endpoints. Partial failure
// is reported in the result, never as an error.
type Sender interface {
	Send(ctx context.Context, endpoints []models.DeviceEndpoint, p PushPayload) DeliveryResult
}

// PushPayload is a platform-neutral push message. Sound, ChannelID and
// Priority are delivery hints passed through to the transport untouched.
type PushPayload struct {
	Title     string
	Body      string
	Data      map[string]string
	Sound     string
	ChannelID string
	Priority  string
	Badge     int
}

type EndpointError struct {
	Token string
	Err   error
}

type DeliveryResult struct {
	Sent   int
	Failed int
	Errors []EndpointError
}

// Invalidator lets the gateway drop endpoints the transport reports as dead.
type Invalidator interface {
	Invalidate(ctx context.Context, token string) error
}

type snsAPI interface {
	Publish(ctx context.Context, params *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
	CreatePlatformEndpoint(ctx context.Context, params *awssns.CreatePlatformEndpointInput, optFns ...func(*awssns.Options)) (*awssns.CreatePlatformEndpointOutput, error)
}

// PushGateway delivers pushes through SNS platform endpoints. One platform
// application per (platform, token class, environment) combination.
type PushGateway struct {
	sns            snsAPI
	fcmArn         string
	apnsArn        string
	apnsSandboxArn string
	voipArn        string
	voipSandboxArn string
	invalidator    Invalidator
}

func NewPushGateway(client snsAPI, invalidator Invalidator) *PushGateway {
	return &PushGateway{
		sns:            client,
		fcmArn:         os.Getenv("SNS_FCM_ARN"),
		apnsArn:        os.Getenv("SNS_APNS_ARN"),
		apnsSandboxArn: os.Getenv("SNS_APNS_SANDBOX_ARN"),
		voipArn:        os.Getenv("SNS_APNS_VOIP_ARN"),
		voipSandboxArn: os.Getenv("SNS_APNS_VOIP_SANDBOX_ARN"),
		invalidator:    invalidator,
	}
}

func (g *PushGateway) platformArn(platform, tokenClass, environment string) (string, error) {
	switch strings.ToLower(platform) {
	case "android":
		if g.fcmArn == "" {
			return "", errors.New("SNS_FCM_ARN not set")
		}
		return g.fcmArn, nil
	case "ios":
		sandbox := environment == models.EnvSandbox
		if tokenClass == models.TokenClassCall {
			if sandbox && g.voipSandboxArn != "" {
				return g.voipSandboxArn, nil
			}
			if g.voipArn == "" {
				return "", errors.New("SNS_APNS_VOIP_ARN not set")
			}
			return g.voipArn, nil
		}
		if sandbox && g.apnsSandboxArn != "" {
			return g.apnsSandboxArn, nil
		}
		if g.apnsArn == "" {
			return "", errors.New("SNS_APNS_ARN not set")
		}
		return g.apnsArn, nil
	default:
		return "", fmt.Errorf("unknown platform %q", platform)
	}
}

// RegisterEndpoint creates (or re-creates) the SNS platform endpoint for a
// raw device token. The returned ARN is what gets persisted by the registry.
func (g *PushGateway) RegisterEndpoint(ctx context.Context, token, platform, tokenClass, environment string) (string, error) {
	appArn, err := g.platformArn(platform, tokenClass, environment)
	if err != nil {
		return "", err
	}

	out, err := g.sns.CreatePlatformEndpoint(ctx, &awssns.CreatePlatformEndpointInput{
		PlatformApplicationArn: aws.String(appArn),
		Token:                  aws.String(token),
	})
	if err != nil {
		return "", fmt.Errorf("create platform endpoint: %w", err)
	}
	return aws.ToString(out.EndpointArn), nil
}

// Send publishes the payload to every enabled endpoint, best effort. A
// disabled endpoint reported by the transport is invalidated so it stops
// showing up in fan-out resolution.
func (g *PushGateway) Send(ctx context.Context, endpoints []models.DeviceEndpoint, p PushPayload) DeliveryResult {
	var res DeliveryResult

	raw, err := json.Marshal(buildSNSMessage(p))
	if err != nil {
		res.Failed = len(endpoints)
		res.Errors = append(res.Errors, EndpointError{Err: err})
		return res
	}

	for _, d := range endpoints {
		if !d.Enabled {
			continue
		}
		_, err := g.sns.Publish(ctx, &awssns.PublishInput{
			MessageStructure: aws.String("json"),
			Message:          aws.String(string(raw)),
			TargetArn:        aws.String(d.EndpointARN),
		})
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, EndpointError{Token: d.Token, Err: err})

			var disabled *types.EndpointDisabledException
			if errors.As(err, &disabled) && g.invalidator != nil {
				if ierr := g.invalidator.Invalidate(ctx, d.Token); ierr != nil {
					log.Printf("failed to invalidate disabled endpoint: %v", ierr)
				}
			}
			continue
		}
		res.Sent++
	}
	return res
}

func buildSNSMessage(p PushPayload) map[string]any {
	notification := map[string]string{
		"title": p.Title,
		"body":  p.Body,
	}
	gcm := map[string]any{
		"notification": notification,
		"data":         p.Data,
	}
	if p.ChannelID != "" {
		gcm["android_channel_id"] = p.ChannelID
	}
	if p.Priority != "" {
		gcm["priority"] = p.Priority
	}

	aps := map[string]any{
		"alert": map[string]string{"title": p.Title, "body": p.Body},
	}
	if p.Sound != "" {
		aps["sound"] = p.Sound
	}
	if p.Badge > 0 {
		aps["badge"] = p.Badge
	}
	apns := map[string]any{"aps": aps}
	for k, v := range p.Data {
		apns[k] = v
	}
	apnsRaw, _ := json.Marshal(apns)

	// Every APNs platform application the gateway provisions needs its own
	// protocol key; an endpoint whose key is absent falls back to the bare
	// "default" string and loses the data payload.
	return map[string]any{
		"default":           p.Body,
		"GCM":               gcm,
		"APNS":              string(apnsRaw),
		"APNS_SANDBOX":      string(apnsRaw),
		"APNS_VOIP":         string(apnsRaw),
		"APNS_VOIP_SANDBOX": string(apnsRaw),
	}
}
