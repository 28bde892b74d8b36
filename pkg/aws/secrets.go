package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsClient reads string secrets from Secrets Manager. Values are cached
// for the life of the process and concurrent lookups of one name share a
// single request.
type SecretsClient struct {
	client secretsAPI
	group  singleflight.Group

	mu    sync.RWMutex
	cache map[string]string
}

func NewSecretsClient(cfg sdkaws.Config) *SecretsClient {
	return newSecretsClient(secretsmanager.NewFromConfig(cfg))
}

func newSecretsClient(client secretsAPI) *SecretsClient {
	return &SecretsClient{client: client, cache: make(map[string]string)}
}

// GetSecret returns the raw string value of the secret name.
func (s *SecretsClient) GetSecret(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	v, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}

	res, err, _ := s.group.Do(name, func() (interface{}, error) {
		out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: sdkaws.String(name)})
		if err != nil {
			return "", fmt.Errorf("failed to get secret %s: %w", name, err)
		}
		if out.SecretString == nil {
			return "", fmt.Errorf("secret %s has no string value", name)
		}
		s.mu.Lock()
		s.cache[name] = *out.SecretString
		s.mu.Unlock()
		return *out.SecretString, nil
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// GetSecretField reads key from a secret stored as a JSON object, the
// format the console uses for key/value secrets.
func (s *SecretsClient) GetSecretField(ctx context.Context, name, key string) (string, error) {
	raw, err := s.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}
	var fields map[string]string
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", fmt.Errorf("secret %s is not a JSON object: %w", name, err)
	}
	v, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("secret %s has no key %q", name, key)
	}
	return v, nil
}

// Resolve returns the secret at ref, or fallback when it cannot be read.
// ref is either "name" or "name#key" for a field of a JSON secret.
func (s *SecretsClient) Resolve(ctx context.Context, ref, fallback string) string {
	var (
		v   string
		err error
	)
	if name, key, ok := strings.Cut(ref, "#"); ok {
		v, err = s.GetSecretField(ctx, name, key)
	} else {
		v, err = s.GetSecret(ctx, ref)
	}
	switch {
	case err != nil:
		zap.L().Warn("secret unavailable, using fallback", zap.String("secret", ref), zap.Error(err))
		return fallback
	case strings.TrimSpace(v) == "":
		zap.L().Warn("secret is empty, using fallback", zap.String("secret", ref))
		return fallback
	}
	return v
}
