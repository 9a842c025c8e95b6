package provider

import (
	"encoding/json"
	"strings"
)

// The provider's payloads arrive in loose shapes: sometimes array-wrapped,
// sometimes a direct object, with inconsistent field naming across versions.
// Normalization converts whatever arrived into the strict contract and fails
// closed on anything it cannot resolve.

var (
	instanceIDKeys = []string{"instanceId", "instance_id", "instanceName", "instance_name", "id", "name"}
	scanCodeKeys   = []string{"scanCode", "scan_code", "base64", "code", "qrcode"}
	statusKeys     = []string{"status", "state", "connectionStatus", "connection_status"}
)

func normalizeConnectPayload(data []byte) (ConnectResult, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return ConnectResult{}, err
	}

	id := lookupString(obj, instanceIDKeys)
	if id == "" {
		return ConnectResult{}, &InvalidResponseError{Missing: "instanceId"}
	}
	status := lookupString(obj, statusKeys)
	if status == "" {
		return ConnectResult{}, &InvalidResponseError{Missing: "status"}
	}

	return ConnectResult{
		InstanceID: id,
		ScanCode:   lookupString(obj, scanCodeKeys),
		Status:     NormalizeStatus(status),
	}, nil
}

func normalizeStatusPayload(data []byte) ([]InstanceStatus, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &InvalidResponseError{Detail: "snapshot payload is not valid JSON"}
	}

	var entries []any
	switch typed := raw.(type) {
	case []any:
		entries = typed
	case map[string]any:
		entries = []any{typed}
	default:
		return nil, &InvalidResponseError{Detail: "snapshot payload is neither object nor array"}
	}

	statuses := make([]InstanceStatus, 0, len(entries))
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		id := lookupString(obj, instanceIDKeys)
		status := lookupString(obj, statusKeys)
		// Entries the snapshot cannot resolve are skipped rather than failing
		// the whole poll; the push channel still covers the missed instance.
		if id == "" || status == "" {
			continue
		}
		statuses = append(statuses, InstanceStatus{
			InstanceID: id,
			Status:     NormalizeStatus(status),
		})
	}
	return statuses, nil
}

// decodeObject unwraps array-wrapped payloads and nested "instance" envelopes
// down to the object carrying the instance fields.
func decodeObject(data []byte) (map[string]any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &InvalidResponseError{Detail: "payload is not valid JSON"}
	}
	if arr, ok := raw.([]any); ok {
		if len(arr) == 0 {
			return nil, &InvalidResponseError{Detail: "payload is an empty array"}
		}
		raw = arr[0]
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, &InvalidResponseError{Detail: "payload is not an object"}
	}
	return obj, nil
}

// lookupString resolves the first matching key, descending into nested
// "instance" and "qrcode" envelopes when the top level has no match.
func lookupString(obj map[string]any, keys []string) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case map[string]any:
			// e.g. "qrcode": {"base64": "...", "code": "..."}
			if s := lookupString(v, keys); s != "" {
				return s
			}
		}
	}
	if nested, ok := obj["instance"].(map[string]any); ok {
		return lookupString(nested, keys)
	}
	return ""
}

// NormalizeStatus canonicalizes a provider status token for comparison.
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
