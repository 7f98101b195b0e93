package viewmodels

import "time"

type SecurityReportData struct {
	Title       string
	GeneratedAt time.Time
	LastScan    time.Time
	ScanStatus  string
	ScanError   string

	Critical int
	High     int
	Medium   int
	Low      int
	Open     int
	Patched  int
	Score    int

	Findings         []ReportFinding
	OutdatedSoftware []ReportSoftware
	OfflineSites     []ReportSite
}

type ReportFinding struct {
	ID          string
	Title       string
	Severity    string
	ExternalRef string
	Host        string
	DetectedAt  time.Time
}

type ReportSoftware struct {
	Name          string
	Vendor        string
	Version       string
	LatestVersion string
}

type ReportSite struct {
	Name           string
	Status         string
	DevicesOffline int
}
