// Package productconfig derives the per-environment identity of a product:
// its URI, bridge network name, local path, cluster context, and domain.
package productconfig

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/wonop-io/rushd/internal/render"
	"github.com/wonop-io/rushd/internal/rushderrors"
)

var validEnvironments = map[string]bool{"dev": true, "staging": true, "prod": true}

// Config is the resolved, read-only product identity shared across the
// reactor and its launch tasks.
type Config struct {
	ProductName             string
	ProductURI              string
	ProductPath             string
	NetworkName             string
	Environment             string
	DomainTemplate          string
	Domain                  string
	KubeContext             string
	InfrastructureRepository string
	DockerRegistry          string
	RootPath                string
}

// New validates environment and derives every other Config field.
// Environment-specific context and domain come from DEV_CTX/PROD_CTX/
// STAGING_CTX and DEV_DOMAIN/PROD_DOMAIN/STAGING_DOMAIN.
func New(rootPath, productName, environment, registry string) (*Config, error) {
	environment = strings.ToLower(environment)
	if !validEnvironments[environment] {
		return nil, fmt.Errorf("productconfig: invalid environment %q (want dev, staging, or prod): %w", environment, rushderrors.ErrConfig)
	}

	productURI := strings.ToLower(slugify(productName))

	kubeContext, err := envFor(environment, "DEV_CTX", "PROD_CTX", "STAGING_CTX")
	if err != nil {
		return nil, err
	}
	domainTemplate, err := envFor(environment, "DEV_DOMAIN", "PROD_DOMAIN", "STAGING_DOMAIN")
	if err != nil {
		return nil, err
	}
	infraRepo, ok := os.LookupEnv("INFRASTRUCTURE_REPOSITORY")
	if !ok {
		return nil, fmt.Errorf("productconfig: INFRASTRUCTURE_REPOSITORY not set: %w", rushderrors.ErrConfig)
	}

	cfg := &Config{
		ProductName:              productName,
		ProductURI:               productURI,
		ProductPath:              "./products/" + productName,
		NetworkName:              "net-" + productURI,
		Environment:              environment,
		DomainTemplate:           domainTemplate,
		KubeContext:              kubeContext,
		InfrastructureRepository: infraRepo,
		DockerRegistry:           registry,
		RootPath:                 rootPath,
	}

	domain, err := render.New().Render(domainTemplate, cfg)
	if err != nil {
		return nil, fmt.Errorf("productconfig: rendering domain template: %w", err)
	}
	cfg.Domain = domain

	return cfg, nil
}

func envFor(environment, devVar, prodVar, stagingVar string) (string, error) {
	var key string
	switch environment {
	case "dev":
		key = devVar
	case "prod":
		key = prodVar
	case "staging":
		key = stagingVar
	}
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("productconfig: %s not set: %w", key, rushderrors.ErrConfig)
	}
	return v, nil
}

var slugInvalid = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// slugify collapses runs of non-alphanumeric characters in name into a
// single hyphen, trimming leading/trailing hyphens. It keeps letter case;
// New lowercases the result.
// No slugging library appears anywhere in the retrieval pack's
// dependency surface, so this one routine is deliberately stdlib-only
// (see DESIGN.md).
func slugify(name string) string {
	s := slugInvalid.ReplaceAllString(name, "-")
	return strings.Trim(s, "-")
}
