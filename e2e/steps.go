package e2e

import (
	"github.com/cucumber/godog"

	"audittrail/e2e/steps/audit"
	"audittrail/e2e/steps/common"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	audit.RegisterSteps(ctx, tc)
}
