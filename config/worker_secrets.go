package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"calsync_server/pkg/logger"
)

// SSMAPI is the part of the SSM client LoadSecrets uses.
type SSMAPI interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// secretParams maps parameter names under the prefix to the field they set.
func (c *Config) secretParams() map[string]*string {
	return map[string]*string{
		"google-client-secret":    &c.GoogleClientSecret,
		"microsoft-client-secret": &c.MicrosoftClientSecret,
		"jwt-secret":              &c.JWTSecret,
		"admin-token":             &c.AdminToken,
		"redis-url":               &c.RedisURL,
	}
}

// LoadSecrets reads decrypted SecureString parameters under
// SSM_PARAMETER_PREFIX and overrides the matching settings. Parameters that
// do not exist leave the current value in place.
func (c *Config) LoadSecrets(ctx context.Context, client SSMAPI) error {
	if c.SSMParameterPrefix == "" {
		return nil
	}
	prefix := strings.TrimRight(c.SSMParameterPrefix, "/") + "/"

	targets := c.secretParams()
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, prefix+name)
	}

	result, err := client.GetParameters(ctx, &ssm.GetParametersInput{
		Names:          names,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to get parameters from SSM: %w", err)
	}

	for _, param := range result.Parameters {
		name := strings.TrimPrefix(aws.ToString(param.Name), prefix)
		if dst, ok := targets[name]; ok {
			*dst = aws.ToString(param.Value)
		}
	}
	logger.Info("[Config.LoadSecrets] loaded %d parameters from %s, %d missing",
		len(result.Parameters), prefix, len(result.InvalidParameters))
	return nil
}
