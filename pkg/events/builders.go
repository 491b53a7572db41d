package events

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/polisai/huntgen/pkg/domain"
)

// deviceNamespace derives stable device identifiers from device names.
var deviceNamespace = uuid.MustParse("6f1f6c1e-3f7a-4f39-9d0e-8f4b7c0a2d51")

// Account is the identity an event is attributed to.
type Account struct {
	Upn         string
	Name        string
	Domain      string
	ObjectID    string
	DisplayName string
}

// AccountFromRow reads an account from an identity_info row, a victim record
// or an attacker profile.
func AccountFromRow[M ~map[string]V, V any](row M) Account {
	get := func(key string) string {
		v, ok := row[key]
		if !ok {
			return ""
		}
		return fmt.Sprint(v)
	}
	a := Account{
		Upn:         get("AccountUpn"),
		Name:        get("AccountName"),
		Domain:      get("AccountDomain"),
		ObjectID:    get("AccountObjectId"),
		DisplayName: get("AccountDisplayName"),
	}
	if a.Name == "" || a.Domain == "" {
		if name, domainPart, ok := strings.Cut(a.Upn, "@"); ok {
			if a.Name == "" {
				a.Name = name
			}
			if a.Domain == "" {
				a.Domain = domainPart
			}
		}
	}
	return a
}

// Device is the endpoint an event is observed on.
type Device struct {
	ID        string
	Name      string
	PrivateIP string
	PublicIP  string
}

// DeviceFromRow reads a device from a device_info row.
func DeviceFromRow(row domain.Row) Device {
	str := func(key string) string {
		if v, ok := row[key].(string); ok {
			return v
		}
		return ""
	}
	return Device{ID: str("DeviceId"), Name: str("DeviceName"), PrivateIP: str("PrivateIP"), PublicIP: str("PublicIP")}
}

// DeviceID returns the stable identifier of a device name.
func DeviceID(name string) string {
	return uuid.NewSHA1(deviceNamespace, []byte(strings.ToLower(name))).String()
}

// Process describes the process that initiated an event.
type Process struct {
	FileName    string
	CommandLine string
}

func reportID(f *gofakeit.Faker) int64 {
	return int64(f.Number(1, 1<<30))
}

func initiating(row domain.Row, p Process, actor Account) {
	row["InitiatingProcessFileName"] = p.FileName
	row["InitiatingProcessCommandLine"] = p.CommandLine
	row["InitiatingProcessAccountName"] = actor.Name
	row["InitiatingProcessAccountDomain"] = actor.Domain
	row["InitiatingProcessAccountUpn"] = actor.Upn
}

// Connection describes one network flow.
type Connection struct {
	Inbound   bool
	RemoteIP  string
	RemoteURL string
	Port      int
	Protocol  string
	BytesSent int64
	BytesRecv int64
}

// NetworkEvent builds a device_network_events row.
func NetworkEvent(f *gofakeit.Faker, ts time.Time, actor Account, dev Device, p Process, c Connection) domain.Row {
	action := ActionOutbound
	local, remote := f.Number(49152, 65535), c.Port
	if c.Inbound {
		action = ActionInbound
		local, remote = c.Port, f.Number(1024, 65535)
	}
	proto := c.Protocol
	if proto == "" {
		proto = "Tcp"
	}
	sent, recv := c.BytesSent, c.BytesRecv
	if sent == 0 {
		sent = int64(f.Number(200, 20000))
	}
	if recv == 0 {
		recv = int64(f.Number(200, 20000))
	}
	row := domain.Row{
		"Timestamp":     ts,
		"ReportId":      reportID(f),
		"DeviceId":      dev.ID,
		"DeviceName":    dev.Name,
		"ActionType":    action,
		"Protocol":      proto,
		"LocalIP":       dev.PrivateIP,
		"LocalPort":     int64(local),
		"RemoteIP":      c.RemoteIP,
		"RemotePort":    int64(remote),
		"RemoteUrl":     c.RemoteURL,
		"BytesSent":     sent,
		"BytesReceived": recv,
	}
	initiating(row, p, actor)
	return row
}

// ProcessEvent builds a device_process_events row. actor runs the new process;
// parent is the process that spawned it.
func ProcessEvent(f *gofakeit.Faker, ts time.Time, actor Account, dev Device, fileName, folder, cmd string, parent Process) domain.Row {
	row := domain.Row{
		"Timestamp":          ts,
		"ReportId":           reportID(f),
		"DeviceId":           dev.ID,
		"DeviceName":         dev.Name,
		"ActionType":         ActionProcessCreated,
		"FileName":           fileName,
		"FolderPath":         folder,
		"ProcessCommandLine": cmd,
		"ProcessId":          int64(f.Number(1000, 65000)),
		"SHA256":             Hash(f),
		"AccountName":        actor.Name,
		"AccountDomain":      actor.Domain,
		"AccountUpn":         actor.Upn,
	}
	row["InitiatingProcessFileName"] = parent.FileName
	row["InitiatingProcessCommandLine"] = parent.CommandLine
	row["InitiatingProcessAccountName"] = actor.Name
	row["InitiatingProcessAccountDomain"] = actor.Domain
	return row
}

// FileEvent builds a device_file_events row.
func FileEvent(f *gofakeit.Faker, ts time.Time, actor Account, dev Device, action, fileName, folder string, p Process) domain.Row {
	row := domain.Row{
		"Timestamp":        ts,
		"ReportId":         reportID(f),
		"DeviceId":         dev.ID,
		"DeviceName":       dev.Name,
		"ActionType":       action,
		"FileName":         fileName,
		"FolderPath":       folder,
		"PreviousFileName": nil,
		"SHA256":           Hash(f),
		"FileSize":         int64(f.Number(1024, 8<<20)),
		"RequestSourceIP":  nil,
	}
	initiating(row, p, actor)
	return row
}

// DeviceEvent builds a device_events row.
func DeviceEvent(f *gofakeit.Faker, ts time.Time, actor Account, dev Device, action, fileName, folder string, p Process) domain.Row {
	row := domain.Row{
		"Timestamp":         ts,
		"ReportId":          reportID(f),
		"DeviceId":          dev.ID,
		"DeviceName":        dev.Name,
		"ActionType":        action,
		"FileName":          fileName,
		"FolderPath":        folder,
		"RegistryKey":       nil,
		"RegistryValueName": nil,
		"RegistryValueData": nil,
	}
	initiating(row, p, actor)
	return row
}

// SignIn describes an Entra ID sign-in attempt.
type SignIn struct {
	Application string
	IPAddress   string
	Country     string
	UserAgent   string
	ErrorCode   int64
	DeviceName  string
	External    bool
}

// SignInEvent builds an aad_sign_in_events_beta row.
func SignInEvent(f *gofakeit.Faker, ts time.Time, acct Account, s SignIn) domain.Row {
	logon := "interactiveUser"
	if s.UserAgent == "" {
		s.UserAgent = f.UserAgent()
	}
	return domain.Row{
		"Timestamp":          ts,
		"ReportId":           reportID(f),
		"Application":        s.Application,
		"LogonType":          logon,
		"ErrorCode":          s.ErrorCode,
		"AccountDisplayName": acct.DisplayName,
		"AccountObjectId":    acct.ObjectID,
		"AccountUpn":         acct.Upn,
		"IsExternalUser":     s.External,
		"IPAddress":          s.IPAddress,
		"Country":            s.Country,
		"DeviceName":         s.DeviceName,
		"UserAgent":          s.UserAgent,
	}
}

// Email describes one message.
type Email struct {
	Sender      Account
	SenderIPv4  string
	SenderIPv6  string
	Recipient   Account
	Subject     string
	Direction   string
	Delivery    string
	Attachments int
	URL         string
	ThreatTypes string
	MessageID   string
}

// EmailEvent builds an email_events row.
func EmailEvent(f *gofakeit.Faker, ts time.Time, e Email) domain.Row {
	if e.MessageID == "" {
		e.MessageID = f.UUID()
	}
	if e.Direction == "" {
		e.Direction = "Inbound"
	}
	if e.Delivery == "" {
		e.Delivery = "Delivered"
	}
	urls := int64(0)
	var url any
	if e.URL != "" {
		urls = 1
		url = e.URL
	}
	var threats any
	if e.ThreatTypes != "" {
		threats = e.ThreatTypes
	}
	return domain.Row{
		"Timestamp":             ts,
		"ReportId":              reportID(f),
		"NetworkMessageId":      e.MessageID,
		"SenderFromAddress":     e.Sender.Upn,
		"SenderDisplayName":     e.Sender.DisplayName,
		"SenderIPv4":            e.SenderIPv4,
		"SenderIPv6":            e.SenderIPv6,
		"RecipientEmailAddress": e.Recipient.Upn,
		"RecipientObjectId":     e.Recipient.ObjectID,
		"Subject":               e.Subject,
		"EmailDirection":        e.Direction,
		"DeliveryAction":        e.Delivery,
		"AttachmentCount":       int64(e.Attachments),
		"UrlCount":              urls,
		"Url":                   url,
		"ThreatTypes":           threats,
	}
}

// UrlClickEvent builds a url_click_events row.
func UrlClickEvent(f *gofakeit.Faker, ts time.Time, acct Account, url, messageID, ip string) domain.Row {
	return domain.Row{
		"Timestamp":        ts,
		"ReportId":         reportID(f),
		"Url":              url,
		"ActionType":       ActionClickAllowed,
		"AccountUpn":       acct.Upn,
		"Workload":         "Email",
		"NetworkMessageId": messageID,
		"IPAddress":        ip,
		"IsClickedThrough": true,
	}
}

// Hash returns a SHA256 digest of random content.
func Hash(f *gofakeit.Faker) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(f.UUID())))
}
