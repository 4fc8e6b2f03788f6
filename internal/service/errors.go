package service

import "errors"

var (
	ErrProviderNotConnected   = errors.New("provider account not connected")
	ErrUnsupportedProvider    = errors.New("unsupported provider")
	ErrProductNotFound        = errors.New("product not found")
	ErrLicenseNotVerified     = errors.New("license not verified for this product")
	ErrPurchaseCodeMismatch   = errors.New("purchase code does not match a purchase of this product")
	ErrMissingEnvVar          = errors.New("required environment variable missing")
	ErrInvalidEnvVar          = errors.New("environment variable value invalid")
	ErrRepositoryInaccessible = errors.New("product repository is not accessible")
	ErrInstallationNotFound   = errors.New("installation not found")
	ErrInstallationNotOwned   = errors.New("installation does not belong to this user")
	ErrDeploymentMismatch     = errors.New("deployment does not belong to this installation")
)
