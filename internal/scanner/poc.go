package scanner

import (
	"fmt"

	"github.com/AsHfIEXE/cybersage/internal/finding"
)

// generatePoC renders the human-readable reproduction text for a finding.
func generatePoC(class finding.Class, endpoint, method, param, payload, evidence string) string {
	step := "Add parameter"
	if method == "POST" {
		step = "Submit form with"
	}

	return fmt.Sprintf(`%s Proof of Concept:

Endpoint: %s
Method: %s
Parameter: %s
Payload: %s

Detection: %s

Reproduction Steps:
1. Navigate to: %s
2. %s:
   %s=%s
3. Observe the behavior described above

Impact:
%s`, class, endpoint, method, param, payload, evidence, endpoint, step, param, payload, classImpact(class))
}

func classImpact(class finding.Class) string {
	switch class {
	case finding.ClassXSS:
		return `- Session hijacking via cookie theft
- Phishing attacks
- Keylogging
- Page defacement`
	case finding.ClassSQLi:
		return `- Database enumeration
- Data extraction (passwords, credit cards, PII)
- Data modification or deletion
- Authentication bypass`
	case finding.ClassCommand:
		return `- Arbitrary command execution on the server
- Full host compromise
- Lateral movement into the internal network`
	case finding.ClassPathTraversal:
		return `- Disclosure of system and application files
- Credential and configuration theft`
	case finding.ClassXXE:
		return `- Local file disclosure
- Server-side request forgery against internal services
- Cloud metadata credential theft`
	}
	return "- Security impact depends on the affected component"
}

// remediation returns the fix guidance per class.
func remediation(class finding.Class) string {
	switch class {
	case finding.ClassXSS:
		return `Encode all user input for the context it is rendered in (HTML entity, attribute, or JavaScript encoding).
Implement Content Security Policy (CSP) headers.
Use HTTPOnly and Secure flags on cookies.
Validate and sanitize all input server-side.`
	case finding.ClassSQLi:
		return `Use parameterized queries (prepared statements) exclusively.
Never concatenate user input into SQL queries.
Implement proper input validation and sanitization.
Apply principle of least privilege to database accounts.`
	case finding.ClassCommand:
		return `Never pass user input to a shell.
Use language APIs instead of shell commands where possible.
If a shell is unavoidable, allow-list the permitted values and escape everything else.`
	case finding.ClassPathTraversal:
		return `Canonicalize paths before use and reject any path containing traversal sequences.
Serve files through an allow-list of identifiers rather than raw paths.
Run the application with minimal filesystem permissions.`
	case finding.ClassXXE:
		return `Disable external entity and DTD processing in the XML parser.
Prefer simpler data formats such as JSON for untrusted input.
Patch the XML processor to its latest version.`
	}
	return "Validate and sanitize all user input."
}
