package document

import (
	"regexp"
	"strings"
)

// Patient is the per-report patient data entered with the study. Only Name is
// required.
type Patient struct {
	Name string `json:"name"`
	DNI  string `json:"dni,omitempty"`
	// Insurer is the patient's health insurance ("obra social").
	Insurer            string `json:"insurer,omitempty"`
	ReferringPhysician string `json:"referringPhysician,omitempty"`
	// StudyDate is an ISO date (YYYY-MM-DD).
	StudyDate string `json:"studyDate,omitempty"`
}

// FilenamePrefix and FilenameSuffix frame the download name of a report.
const (
	FilenamePrefix = "informe-cistoscopia-"
	FilenameSuffix = ".pdf"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Filename derives the report file name from the patient name: each run of
// whitespace becomes a single underscore, nothing else is substituted.
func Filename(patientName string) string {
	name := whitespaceRun.ReplaceAllString(strings.TrimSpace(patientName), "_")
	if name == "" {
		name = "paciente"
	}
	return FilenamePrefix + name + FilenameSuffix
}

// FormatStudyDate renders an ISO date as DD/MM/YYYY. Values that are not
// dash-separated dates are returned unchanged.
func FormatStudyDate(iso string) string {
	iso = strings.TrimSpace(iso)
	parts := strings.Split(iso, "-")
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return iso
	}
	return parts[2] + "/" + parts[1] + "/" + parts[0]
}

// row is one line of the patient data box.
type row struct {
	label string
	value string
}

// rows lists the patient box rows: the name, then each optional field that
// has a value.
func (p Patient) rows() []row {
	rows := []row{{"Paciente:", strings.TrimSpace(p.Name)}}
	optional := []row{
		{"DNI:", p.DNI},
		{"Obra social:", p.Insurer},
		{"Médico solicitante:", p.ReferringPhysician},
		{"Fecha del estudio:", FormatStudyDate(p.StudyDate)},
	}
	for _, r := range optional {
		if v := strings.TrimSpace(r.value); v != "" {
			rows = append(rows, row{r.label, v})
		}
	}
	return rows
}
