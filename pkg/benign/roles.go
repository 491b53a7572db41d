package benign

// Role classes drive activity volume and the processes and files an employee
// touches.
const (
	RoleAdmin     = "admin"
	RoleEngineer  = "engineer"
	RoleSales     = "sales"
	RoleCorporate = "corporate"
	RoleIntern    = "intern"
)

var roleWeights = []struct {
	role   string
	weight float64
}{
	{RoleAdmin, 0.05},
	{RoleEngineer, 0.55},
	{RoleSales, 0.15},
	{RoleCorporate, 0.18},
	{RoleIntern, 0.07},
}

// VolumeMultiplier scales per-user event counts by role.
var VolumeMultiplier = map[string]float64{
	RoleAdmin:     2.5,
	RoleEngineer:  1.0,
	RoleSales:     1.3,
	RoleCorporate: 0.8,
	RoleIntern:    0.4,
}

var departmentsByRole = map[string][]string{
	RoleAdmin:     {"IT", "Security"},
	RoleEngineer:  {"Engineering"},
	RoleSales:     {"Sales", "Customer Success"},
	RoleCorporate: {"Finance", "Human Resources", "Marketing"},
	RoleIntern:    {"Engineering", "Marketing", "Sales"},
}

var roleProcesses = map[string][]string{
	RoleAdmin: {
		"powershell.exe", "cmd.exe", "mmc.exe", "regedit.exe", "schtasks.exe",
		"taskmgr.exe", "gpupdate.exe", "teamviewer.exe", "vmware-vmx.exe",
	},
	RoleEngineer: {
		"vscode.exe", "pycharm.exe", "python.exe", "java.exe", "node.exe", "go.exe",
		"git.exe", "ssh.exe", "docker.exe", "kubectl.exe", "make.exe",
	},
	RoleSales: {
		"chrome.exe", "msedge.exe", "outlook.exe", "teams.exe", "zoom.exe",
		"powerpoint.exe", "excel.exe", "salesforce.exe",
	},
	RoleCorporate: {
		"excel.exe", "word.exe", "powerpoint.exe", "outlook.exe", "teams.exe",
		"acrobat.exe", "sapgui.exe", "workday.exe",
	},
	RoleIntern: {
		"msedge.exe", "chrome.exe", "notepad.exe", "vscode.exe", "teams.exe",
	},
}

// %USER% is replaced by the account name.
var roleDirs = map[string][]string{
	RoleAdmin:     {`C:\Windows\System32`, `C:\Scripts`, `C:\Temp`},
	RoleEngineer:  {`C:\src\projects`, `C:\Users\%USER%\.ssh`, `C:\Users\%USER%\AppData\Local\Temp`},
	RoleSales:     {`C:\Users\%USER%\Documents\Proposals`, `C:\Users\%USER%\Downloads`, `C:\Users\%USER%\Desktop`},
	RoleCorporate: {`C:\Users\%USER%\Documents\Finance`, `C:\Users\%USER%\Documents\HR`, `\\fileserver01\Shared\Legal`},
	RoleIntern:    {`C:\Users\%USER%\Downloads`, `C:\Users\%USER%\Documents`},
}

var roleExts = map[string][]string{
	RoleAdmin:     {".ps1", ".bat", ".log", ".csv"},
	RoleEngineer:  {".py", ".go", ".java", ".ts", ".json", ".yaml"},
	RoleSales:     {".pptx", ".xlsx", ".pdf", ".docx"},
	RoleCorporate: {".xlsx", ".docx", ".csv", ".pdf"},
	RoleIntern:    {".txt", ".md", ".pdf", ".pptx"},
}

var signInApps = []string{"Office 365 Exchange Online", "Microsoft Teams", "SharePoint Online", "Azure Portal", "OneDrive"}

var emailSubjects = []string{
	"Weekly sync notes", "Q3 planning", "Re: customer follow-up", "Lunch on Friday?",
	"Updated roadmap", "Expense report reminder", "Build failing on main", "Contract draft",
}

// Scale returns the role-adjusted [lo, hi] range, never below 1.
func Scale(lo, hi int, role string) (int, int) {
	m, ok := VolumeMultiplier[role]
	if !ok {
		m = 1
	}
	return max(1, int(float64(lo)*m)), max(1, int(float64(hi)*m))
}
