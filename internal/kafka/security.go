package kafka

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/tls"
	"fmt"
	"hash"

	"github.com/IBM/sarama"
	"github.com/aws/aws-msk-iam-sasl-signer-go/signer"
	"github.com/xdg-go/scram"
)

// SecurityConfig holds broker authentication and transport settings shared
// by the consumer and the DLQ producer.
type SecurityConfig struct {
	Protocol           string
	SASLMechanism      string
	SASLUsername       string
	SASLPassword       string
	AWSRegion          string
	InsecureSkipVerify bool
}

// XDGSCRAMClient implements sarama.SCRAMClient for SCRAM authentication.
type XDGSCRAMClient struct {
	*scram.Client
	*scram.ClientConversation
	scram.HashGeneratorFcn
}

var _ sarama.SCRAMClient = (*XDGSCRAMClient)(nil)

// Begin starts the SCRAM authentication process.
func (x *XDGSCRAMClient) Begin(userName, password, authzID string) (err error) {
	x.Client, err = x.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.ClientConversation = x.Client.NewConversation()
	return nil
}

// Step performs a step in the SCRAM authentication.
func (x *XDGSCRAMClient) Step(challenge string) (response string, err error) {
	return x.ClientConversation.Step(challenge)
}

// Done indicates if authentication is complete.
func (x *XDGSCRAMClient) Done() bool {
	return x.ClientConversation.Done()
}

// SHA256 returns a SHA256 hash generator.
func SHA256() scram.HashGeneratorFcn {
	return func() hash.Hash { return sha256.New() }
}

// SHA512 returns a SHA512 hash generator.
func SHA512() scram.HashGeneratorFcn {
	return func() hash.Hash { return sha512.New() }
}

// MSKAccessTokenProvider implements sarama.AccessTokenProvider for AWS MSK IAM authentication.
type MSKAccessTokenProvider struct {
	region string
}

// Token generates an AWS MSK IAM authentication token.
func (m *MSKAccessTokenProvider) Token() (*sarama.AccessToken, error) {
	token, expiryMs, err := signer.GenerateAuthToken(context.Background(), m.region)
	if err != nil {
		return nil, fmt.Errorf("failed to generate MSK IAM token: %w", err)
	}

	return &sarama.AccessToken{
		Token: token,
		Extensions: map[string]string{
			"expiry": fmt.Sprintf("%d", expiryMs),
		},
	}, nil
}

func configureSecurity(config *sarama.Config, sec SecurityConfig) error {
	switch sec.Protocol {
	case "", "PLAINTEXT":
		return nil

	case "SASL_PLAINTEXT", "SASL_SSL":
		config.Net.SASL.Enable = true

		switch sec.SASLMechanism {
		case "PLAIN":
			config.Net.SASL.Mechanism = sarama.SASLTypePlaintext
			config.Net.SASL.User = sec.SASLUsername
			config.Net.SASL.Password = sec.SASLPassword

		case "SCRAM-SHA-256":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			config.Net.SASL.User = sec.SASLUsername
			config.Net.SASL.Password = sec.SASLPassword
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA256()}
			}

		case "SCRAM-SHA-512":
			config.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			config.Net.SASL.User = sec.SASLUsername
			config.Net.SASL.Password = sec.SASLPassword
			config.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA512()}
			}

		case "AWS_MSK_IAM":
			if sec.AWSRegion == "" {
				return fmt.Errorf("aws region is required for AWS_MSK_IAM")
			}
			config.Net.SASL.Mechanism = sarama.SASLTypeOAuth
			// OAuth ignores these but sarama validates that they are set
			config.Net.SASL.User = "token"
			config.Net.SASL.Password = "token"
			config.Net.SASL.TokenProvider = &MSKAccessTokenProvider{region: sec.AWSRegion}

		default:
			return fmt.Errorf("unsupported SASL mechanism: %s", sec.SASLMechanism)
		}

		if sec.Protocol == "SASL_SSL" {
			enableTLS(config, sec)
		}

	case "SSL":
		enableTLS(config, sec)

	default:
		return fmt.Errorf("unsupported security protocol: %s", sec.Protocol)
	}

	return nil
}

func enableTLS(config *sarama.Config, sec SecurityConfig) {
	config.Net.TLS.Enable = true
	config.Net.TLS.Config = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: sec.InsecureSkipVerify, //nolint:gosec // opt-in for local brokers with self-signed certs
	}
}
