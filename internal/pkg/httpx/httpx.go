package httpx

import (
	"github.com/gofiber/fiber/v2"
)

// Error codes surfaced in the response envelope. Stable; clients match on these.
const (
	CodeMissingApiKey           = "MissingApiKey"
	CodeInvalidApiKey           = "InvalidApiKey"
	CodeNotApproved             = "NotApproved"
	CodeNoSigningSecret         = "NoSigningSecret"
	CodeMissingSignatureHeaders = "MissingSignatureHeaders"
	CodeInvalidTimestamp        = "InvalidTimestamp"
	CodeRequestExpired          = "RequestExpired"
	CodeReplayDetected          = "ReplayDetected"
	CodeInvalidSignature        = "InvalidSignature"
	CodeIpNotAllowed            = "IpNotAllowed"
	CodeForbidden               = "Forbidden"
	CodeMissingParams           = "MissingParams"
	CodeInvalidAmount           = "InvalidAmount"
	CodeInvalidQris             = "InvalidQris"
	CodeInvalidUrl              = "InvalidUrl"
	CodeNotFound                = "NotFound"
	CodeConflict                = "Conflict"
	CodeContention              = "Contention"
	CodeNoSuffixAvailable       = "NoSuffixAvailable"
	CodeRateLimit               = "RateLimit"
	CodeUpstreamUnavailable     = "UpstreamUnavailable"
	CodeInternal                = "Internal"
)

// OK writes the success envelope with HTTP 200.
func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

// Created writes the success envelope with HTTP 201.
func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": data})
}

// Fail writes the error envelope with the given HTTP status and code.
func Fail(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   fiber.Map{"code": code, "message": message},
	})
}

// FailWithDetails writes the error envelope including a details object.
func FailWithDetails(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   fiber.Map{"code": code, "message": message, "details": details},
	})
}
