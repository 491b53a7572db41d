package benign

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the format of start_date and end_date.
const DateLayout = "2006-01-02"

// Config is the benign section of a scenario file. Zero values fall back to
// the defaults applied by ApplyDefaults.
type Config struct {
	NumEmployees int    `yaml:"num_employees" json:"num_employees"`
	StartDate    string `yaml:"start_date" json:"start_date"`
	EndDate      string `yaml:"end_date" json:"end_date"`

	NumSignInsPerUserMin       int `yaml:"num_sign_ins_per_user_min" json:"num_sign_ins_per_user_min"`
	NumSignInsPerUserMax       int `yaml:"num_sign_ins_per_user_max" json:"num_sign_ins_per_user_max"`
	NumDevicesPerUserMin       int `yaml:"num_devices_per_user_min" json:"num_devices_per_user_min"`
	NumDevicesPerUserMax       int `yaml:"num_devices_per_user_max" json:"num_devices_per_user_max"`
	DeviceEventsPerUserMin     int `yaml:"device_events_per_user_min" json:"device_events_per_user_min"`
	DeviceEventsPerUserMax     int `yaml:"device_events_per_user_max" json:"device_events_per_user_max"`
	DeviceFileEventsPerUserMin int `yaml:"device_file_events_per_user_min" json:"device_file_events_per_user_min"`
	DeviceFileEventsPerUserMax int `yaml:"device_file_events_per_user_max" json:"device_file_events_per_user_max"`
	DeviceProcessEventsMin     int `yaml:"device_process_events_min" json:"device_process_events_min"`
	DeviceProcessEventsMax     int `yaml:"device_process_events_max" json:"device_process_events_max"`
	EmailsPerUserMin           int `yaml:"emails_per_user_min" json:"emails_per_user_min"`
	EmailsPerUserMax           int `yaml:"emails_per_user_max" json:"emails_per_user_max"`
	NetworkEventsPerUserMin    int `yaml:"network_events_per_user_min" json:"network_events_per_user_min"`
	NetworkEventsPerUserMax    int `yaml:"network_events_per_user_max" json:"network_events_per_user_max"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	def := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}
	def(&c.NumEmployees, 10)
	if c.StartDate == "" {
		c.StartDate = "2025-01-01"
	}
	if c.EndDate == "" {
		c.EndDate = "2025-01-02"
	}
	def(&c.NumSignInsPerUserMin, 1)
	def(&c.NumSignInsPerUserMax, 5)
	def(&c.NumDevicesPerUserMin, 1)
	def(&c.NumDevicesPerUserMax, 3)
	def(&c.DeviceEventsPerUserMin, 1)
	def(&c.DeviceEventsPerUserMax, 5)
	def(&c.DeviceFileEventsPerUserMin, 1)
	def(&c.DeviceFileEventsPerUserMax, 5)
	def(&c.DeviceProcessEventsMin, 1)
	def(&c.DeviceProcessEventsMax, 5)
	def(&c.EmailsPerUserMin, 1)
	def(&c.EmailsPerUserMax, 5)
	def(&c.NetworkEventsPerUserMin, 1)
	def(&c.NetworkEventsPerUserMax, 5)
}

// Window returns the parsed start and end dates.
func (c Config) Window() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, c.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := time.Parse(DateLayout, c.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end_date: %w", err)
	}
	return start, end, nil
}

// Validate checks ranges and dates. Call ApplyDefaults first.
func (c Config) Validate() error {
	var errs []error
	if c.NumEmployees < 1 {
		errs = append(errs, errors.New("num_employees must be at least 1"))
	}
	start, end, err := c.Window()
	if err != nil {
		errs = append(errs, err)
	} else if end.Before(start) {
		errs = append(errs, fmt.Errorf("end_date %s is before start_date %s", c.EndDate, c.StartDate))
	}
	ranges := []struct {
		name     string
		min, max int
	}{
		{"num_sign_ins_per_user", c.NumSignInsPerUserMin, c.NumSignInsPerUserMax},
		{"num_devices_per_user", c.NumDevicesPerUserMin, c.NumDevicesPerUserMax},
		{"device_events_per_user", c.DeviceEventsPerUserMin, c.DeviceEventsPerUserMax},
		{"device_file_events_per_user", c.DeviceFileEventsPerUserMin, c.DeviceFileEventsPerUserMax},
		{"device_process_events", c.DeviceProcessEventsMin, c.DeviceProcessEventsMax},
		{"emails_per_user", c.EmailsPerUserMin, c.EmailsPerUserMax},
		{"network_events_per_user", c.NetworkEventsPerUserMin, c.NetworkEventsPerUserMax},
	}
	for _, r := range ranges {
		if r.min < 0 || r.max < r.min {
			errs = append(errs, fmt.Errorf("%s: invalid range [%d, %d]", r.name, r.min, r.max))
		}
	}
	return errors.Join(errs...)
}
