package eval

import "regexp"

// Curated text-evidence patterns. The engine is keyword-driven by design:
// every inference below matches lowercase ticket text against these
// patterns rather than any statistical model. Keep the alternations in
// sync with the decision tables in rules.go.
var (
	emailAddrPattern   = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[A-Za-z]{2,}\b`)
	usernamePattern    = regexp.MustCompile(`(?i)\b(username|user id|userid|user:)\b`)
	deviceWordPattern  = regexp.MustCompile(`(?i)\b(windows|mac|macbook|iphone|ios|android|linux)\b`)
	loginWordPattern   = regexp.MustCompile(`(?i)\b(login|log in|signin|sign in|password)\b`)
	printerIDPattern   = regexp.MustCompile(`(?i)\b(printer\s*(id|model|number|#)|[A-Z]{1,4}-\d{2,5})\b`)
	teamPattern        = regexp.MustCompile(`(?i)\b(team|department|org|organization)\b`)
	accessLevelPattern = regexp.MustCompile(`(?i)\b(admin|read|write|viewer|editor|owner|role|access level)\b`)
	nameHintPattern    = regexp.MustCompile(`\b(name:|for [A-Z][a-z]+(?: [A-Z][a-z]+)?)`)
	urgencyPattern     = regexp.MustCompile(`(?i)\b(urgent|asap|immediately|critical|sev1|priority)\b`)
	deadlinePattern    = regexp.MustCompile(`(?i)\b(deadline|due|by|before|today|tomorrow|this week|eod|end of day|monday)\b`)
	timeHintPattern    = regexp.MustCompile(`(?i)\b(since|started|start|today|yesterday|this morning|last night|next month|\d{1,2}:\d{2})\b`)
	locationPattern    = regexp.MustCompile(`(?i)\b(home|office|floor|room|building|site|remote|location)\b`)
	errorHintPattern   = regexp.MustCompile(`(?i)\b(error|code|failed|denied|incorrect|timeout|screenshot)\b`)

	securityPattern = regexp.MustCompile(`(?i)\b(` +
		`phishing|malware|ransomware|compromised|suspicious link|credential theft|` +
		`unauthorized|breach|confidential|data leak|lost phone|lost device|wrong external email` +
		`)\b`)
	accessPattern = regexp.MustCompile(`(?i)\b(` +
		`access|permission|role|account|provisioning|onboarding|new employee|joiner|leaver|` +
		`grant access|provide access|requesting access|access to|jira|confluence|okta|sso|sap system|vpn access` +
		`)\b`)
	accessStrongPattern = regexp.MustCompile(`(?i)\b(` +
		`access denied|permission denied|account locked|onboarding|new employee|joiner|` +
		`jira|confluence|okta|sso|hr portal|sap|provisioning|role` +
		`)\b`)
	printerPattern         = regexp.MustCompile(`(?i)\b(printer|print queue|toner|paper jam|spooler)\b`)
	appNamePattern         = regexp.MustCompile(`(?i)\b(teams|slack|zoom|outlook|chrome|edge|onedrive|sharepoint)\b`)
	softwareSymptomPattern = regexp.MustCompile(`(?i)\b(stuck loading|loading screen|crash|not opening|not working|freezing|won't start|wont start|spinning|hangs)\b`)
	strongOutagePattern    = regexp.MustCompile(`(?i)\b(` +
		`wifi is down|wifi down|wi-fi is down|wi-fi down|wireless is down|` +
		`no internet|internet down|can't connect|cannot connect|unable to connect|` +
		`network outage|outage` +
		`)\b`)
	vpnPattern         = regexp.MustCompile(`(?i)\b(vpn|anyconnect|pulse secure|error\s*(809|720|691))\b`)
	vpnErrorCode       = regexp.MustCompile(`(?i)\berror\s*(809|720|691)\b`)
	outageMultiPattern = regexp.MustCompile(`(?i)\b(outage affecting multiple users|affecting multiple users|whole floor|entire floor|whole office)\b`)
	networkTermPattern = regexp.MustCompile(`(?i)\b(wifi|wi-fi|wireless|internet|network|connect|connection)\b`)
	networkPerfPattern = regexp.MustCompile(`(?i)\b(slow internet|internet is very slow|network is slow|times out|timeout)\b`)
	printToPDFPattern  = regexp.MustCompile(`(?i)\b(print to pdf|pdf)\b`)
	hardwareReqPattern = regexp.MustCompile(`(?i)\b(new laptop|monitor|keyboard|mouse|dock)\b`)
	physicalReplPattern = regexp.MustCompile(`(?i)\b(replace|replacement|new laptop|new monitor|new keyboard)\b`)
	lostDevicePattern  = regexp.MustCompile(`(?i)\b(lost(\s+\w+){0,2}\s+(phone|device)|lost phone|lost device|stolen|missing phone|device stolen)\b`)
	corpAccessPattern  = regexp.MustCompile(`(?i)\b(company email|corporate email|work email|company access|corporate access)\b`)
	laptopFailPattern  = regexp.MustCompile(`(?i)\b(blue screen|bsod|boot loop|won't boot|wont boot|bitlocker|recovery key|startup repair)\b`)
	emailCtxPattern    = regexp.MustCompile(`(?i)\b(outlook|calendar|shared mailbox|delegate access|mailbox|invitation|meeting invite|exchange|shared calendar)\b`)
	bitlockerPattern   = regexp.MustCompile(`(?i)\b(bitlocker|recovery key|windows laptop)\b`)
	hotspotHomePattern = regexp.MustCompile(`(?i)\b(vpn works via hotspot|vpn works from .*hotspot|hotspot works).*(home wi-?fi|home wifi)|` +
		`(home wi-?fi|home wifi).*(vpn works via hotspot|hotspot works)\b`)
	deviceExplicitPattern = regexp.MustCompile(`(?i)\b(iphone|ios|android|windows|mac|macbook)\b`)

	blockingWorkPattern  = regexp.MustCompile(`(?i)\b(can't work|cannot work|unable to work|blocked|can't log in|cannot log in|reboot loop|blue screen)\b`)
	outagePattern        = regexp.MustCompile(`(?i)\b(outage|down|whole company|company[-\s]?wide|whole team|all users|everyone|nobody can|can't connect)\b`)
	accessUrgentPattern  = regexp.MustCompile(`(?i)\b(today|asap|urgent|blocked now|immediately)\b`)
	cannotAccessPattern  = regexp.MustCompile(`(?i)\b(cannot access|can't access|can’t access)\b`)
	timeoutDNSPattern    = regexp.MustCompile(`(?i)\b(timeout|times out|time out|dns|proxy)\b`)
	corpNetworkPattern   = regexp.MustCompile(`(?i)\b(company network|office network)\b`)
	externalSvcPattern   = regexp.MustCompile(`(?i)\b(github|external site|external service|external services)\b`)
	multiUserTextPattern = regexp.MustCompile(`(?i)\b(all users|everyone|whole floor|whole team|nobody)\b`)
	outlookPwdPattern    = regexp.MustCompile(`(?i)\boutlook.*password\b`)
	hwIssuePattern       = regexp.MustCompile(`(?i)\b(flicker|flickers|flickering|not working|issue|broken|fails)\b`)
	newJoinerPattern     = regexp.MustCompile(`(?i)\b(new employee|new hire|joining|joiner|starts)\b`)

	// Per-field evidence patterns for missing-field pruning.
	connTypePattern    = regexp.MustCompile(`(?i)\b(usb|ethernet|wifi|wi-fi|bluetooth|lan)\b`)
	speedTestPattern   = regexp.MustCompile(`(?i)\b(speed test|mbps|latency|packet loss)\b`)
	vpnClientPattern   = regexp.MustCompile(`(?i)\b(anyconnect|globalprotect|openvpn|pulse|forticlient)\b`)
	timezonePattern    = regexp.MustCompile(`(?i)\b(utc|gmt|pst|est|ist|timezone)\b`)
	zoomVersionPattern = regexp.MustCompile(`(?i)\bzoom.*\b(version|v\d)`)
	meetingIDPattern   = regexp.MustCompile(`(?i)\bmeeting\s*id\b`)
	slackVerPattern    = regexp.MustCompile(`(?i)\bslack.*\b(version|v\d)`)
	appWordPattern     = regexp.MustCompile(`(?i)\b(teams|slack|zoom|docker|chrome|outlook)\b`)
	adminApprPattern   = regexp.MustCompile(`(?i)\badmin|approval\b`)
	windowsVerPattern  = regexp.MustCompile(`(?i)\bwindows\s*\d`)
	phoneAssetPattern  = regexp.MustCompile(`(?i)\b(phone|iphone|android|asset|id)\b`)
	assetIDPattern     = regexp.MustCompile(`(?i)\b(asset|serial|tag|hostname|device id)\b`)
	batteryPattern     = regexp.MustCompile(`(?i)\b(battery|power|charging|charger)\b`)
	appAffectedPattern = regexp.MustCompile(`(?i)\b(app|application|teams|zoom|slack|outlook)\b`)
	managerPattern     = regexp.MustCompile(`(?i)\b(manager|approval|approved|group)\b`)
)
