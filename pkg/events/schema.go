// Package events builds Defender XDR style event rows. The benign population
// and every attack technique share these builders so that fragments of the
// same table normally agree on their columns.
package events

import "github.com/polisai/huntgen/pkg/domain"

// Table names.
const (
	IdentityInfo        = "identity_info"
	SignInEvents        = "aad_sign_in_events_beta"
	DeviceInfo          = "device_info"
	DeviceEvents        = "device_events"
	DeviceFileEvents    = "device_file_events"
	DeviceProcessEvents = "device_process_events"
	EmailEvents         = "email_events"
	DeviceNetworkEvents = "device_network_events"
	// UrlClickEvents is only produced by attack techniques.
	UrlClickEvents = "url_click_events"
)

// Action types.
const (
	ActionInbound         = "InboundConnectionAccepted"
	ActionOutbound        = "ConnectionSuccess"
	ActionFileCreated     = "FileCreated"
	ActionFileModified    = "FileModified"
	ActionFileDeleted     = "FileDeleted"
	ActionFileRenamed     = "FileRenamed"
	ActionProcessCreated  = "ProcessCreated"
	ActionLogonSuccess    = "LogonSuccess"
	ActionLogonFailed     = "LogonFailed"
	ActionClickAllowed    = "ClickAllowed"
	ActionRegistrySet     = "RegistryValueSet"
	ActionScheduledTask   = "ScheduledTaskCreated"
	ActionPasswordChange  = "UserAccountPasswordReset"
	ActionAccountDisabled = "UserAccountDisabled"
)

// Columns lists the column order of every table the builders produce.
var Columns = map[string][]string{
	IdentityInfo: {
		"Timestamp", "ReportId", "AccountObjectId", "AccountUpn", "OnPremSid",
		"AccountDisplayName", "AccountName", "AccountDomain", "GivenName", "Surname",
		"Department", "JobTitle", "Role", "Team", "ManagerUpn", "City", "Country",
		"IsAccountEnabled",
	},
	SignInEvents: {
		"Timestamp", "ReportId", "Application", "LogonType", "ErrorCode",
		"AccountDisplayName", "AccountObjectId", "AccountUpn", "IsExternalUser",
		"IPAddress", "Country", "DeviceName", "UserAgent",
	},
	DeviceInfo: {
		"Timestamp", "ReportId", "DeviceId", "DeviceName", "OSPlatform", "OSVersion",
		"PublicIP", "PrivateIP", "MacAddress", "LoggedOnUsers", "DeviceType",
	},
	DeviceEvents: {
		"Timestamp", "ReportId", "DeviceId", "DeviceName", "ActionType", "FileName",
		"FolderPath", "RegistryKey", "RegistryValueName", "RegistryValueData",
		"InitiatingProcessFileName", "InitiatingProcessCommandLine",
		"InitiatingProcessAccountName", "InitiatingProcessAccountDomain",
		"InitiatingProcessAccountUpn",
	},
	DeviceFileEvents: {
		"Timestamp", "ReportId", "DeviceId", "DeviceName", "ActionType", "FileName",
		"FolderPath", "PreviousFileName", "SHA256", "FileSize",
		"InitiatingProcessFileName", "InitiatingProcessCommandLine",
		"InitiatingProcessAccountName", "InitiatingProcessAccountDomain",
		"InitiatingProcessAccountUpn", "RequestSourceIP",
	},
	DeviceProcessEvents: {
		"Timestamp", "ReportId", "DeviceId", "DeviceName", "ActionType", "FileName",
		"FolderPath", "ProcessCommandLine", "ProcessId", "SHA256", "AccountName",
		"AccountDomain", "AccountUpn", "InitiatingProcessFileName",
		"InitiatingProcessCommandLine", "InitiatingProcessAccountName",
		"InitiatingProcessAccountDomain",
	},
	EmailEvents: {
		"Timestamp", "ReportId", "NetworkMessageId", "SenderFromAddress",
		"SenderDisplayName", "SenderIPv4", "SenderIPv6", "RecipientEmailAddress",
		"RecipientObjectId", "Subject", "EmailDirection", "DeliveryAction",
		"AttachmentCount", "UrlCount", "Url", "ThreatTypes",
	},
	DeviceNetworkEvents: {
		"Timestamp", "ReportId", "DeviceId", "DeviceName", "ActionType", "Protocol",
		"LocalIP", "LocalPort", "RemoteIP", "RemotePort", "RemoteUrl", "BytesSent",
		"BytesReceived", "InitiatingProcessFileName", "InitiatingProcessCommandLine",
		"InitiatingProcessAccountName", "InitiatingProcessAccountDomain",
		"InitiatingProcessAccountUpn",
	},
	UrlClickEvents: {
		"Timestamp", "ReportId", "Url", "ActionType", "AccountUpn", "Workload",
		"NetworkMessageId", "IPAddress", "IsClickedThrough",
	},
}

// NewTable returns an empty table with the builder column order for name.
func NewTable(name string) *domain.Table {
	return domain.NewTable(name, Columns[name]...)
}
