package mqtt

// Topic contract shared with home-automation consumers. These strings are
// wire-level and must not change.
const (
	// TopicPrefix is the base for every kettle topic.
	TopicPrefix = "fellow/kettle"

	// Status topics (published by the bridge).
	TopicStatusPower              = TopicPrefix + "/status/power"
	TopicStatusCurrentTemperature = TopicPrefix + "/status/current_temperature"
	TopicStatusTargetTemperature  = TopicPrefix + "/status/target_temperature"
	TopicStatusWarmingRate        = TopicPrefix + "/status/warming_rate"
	TopicStatusFillLevel          = TopicPrefix + "/status/fill_level"

	// Action topics (subscribed by the bridge).
	TopicActionPower             = TopicPrefix + "/action/power"
	TopicActionTargetTemperature = TopicPrefix + "/action/target_temperature"
	TopicActionWildcard          = TopicPrefix + "/action/#"

	// TopicAvailability carries the retained online/offline marker.
	TopicAvailability = TopicPrefix + "/bridge/availability"
)
