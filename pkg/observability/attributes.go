package observability

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys.
var (
	AttrPlanID     = attribute.Key("ezra.plan.id")
	AttrDeviceID   = attribute.Key("ezra.device.id")
	AttrPlatform   = attribute.Key("ezra.device.platform")
	AttrProvider   = attribute.Key("ezra.llm.provider")
	AttrRiskLevel  = attribute.Key("ezra.plan.risk_level")
	AttrVerified   = attribute.Key("ezra.plan.verified")
	AttrActionType = attribute.Key("ezra.action.type")
)

// PlanOperation returns attributes identifying a plan request.
func PlanOperation(deviceID, platform string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrDeviceID.String(deviceID),
		AttrPlatform.String(platform),
	}
}
