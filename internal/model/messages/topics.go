package messages

import "fmt"

// DefaultTopicRoot prefixes every device topic.
const DefaultTopicRoot = "devices"

func SensorUplinkTopic(root, sensorID string) string {
	return fmt.Sprintf("%s/sensors/%s/uplink", rootOrDefault(root), sensorID)
}

func ValveDownlinkTopic(root, valveID string) string {
	return fmt.Sprintf("%s/valves/%s/downlink", rootOrDefault(root), valveID)
}

func ValveStatusTopic(root, valveID string) string {
	return fmt.Sprintf("%s/valves/%s/status", rootOrDefault(root), valveID)
}

func rootOrDefault(root string) string {
	if root == "" {
		return DefaultTopicRoot
	}
	return root
}
