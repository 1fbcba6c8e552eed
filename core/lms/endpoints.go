package lms

import (
	"fmt"
	"net/url"
)

const (
	coursesPath    = "/courses/students?publishStatus=-1&pn=1&ps=20&type=1"
	homeworkPath   = "/homeworks/student?ocId=%d&pn=1&ps=20"
	activitiesPath = "/classActivity/stu/%d/-1?pn=1&ps=20"
	submitPath     = "/newAttendance/signByStu"
)

// Endpoints holds the candidate API bases of the platform, newest/most canonical first,
// and the web origin the API expects requests to come from.
type Endpoints struct {
	ReadBases   []string // course, homework & activity listings
	SubmitBases []string // attendance submission
	Origin      string
	IndexPage   string
	// ExtraCookieDomains are domains that receive the token cookie without being API bases.
	ExtraCookieDomains []string
}

// DefaultEndpoints returns the historically accumulated hosts of the DGUT uLearning platform.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		ReadBases: []string{
			"https://lms.dgut.edu.cn/courseweb/api",
			"https://lms.dgut.edu.cn/api",
			"https://courseapi.ulearning.cn",
			"https://dgut.ulearning.cn/api",
		},
		SubmitBases: []string{
			"https://lms.dgut.edu.cn/courseweb/api",
			"https://lms.dgut.edu.cn/api",
			"https://courseapi.ulearning.cn",
			"https://apps.ulearning.cn",
		},
		Origin:             "https://lms.dgut.edu.cn",
		IndexPage:          "https://lms.dgut.edu.cn/courseweb/ulearning/index.html",
		ExtraCookieDomains: []string{".dgut.edu.cn", "application.dgut.edu.cn"},
	}
}

func join(bases []string, path string) []string {
	urls := make([]string, 0, len(bases))
	for _, base := range bases {
		urls = append(urls, base+path)
	}
	return urls
}

func (ep Endpoints) CourseURLs() []string {
	return join(ep.ReadBases, coursesPath)
}

func (ep Endpoints) HomeworkURLs(courseID int) []string {
	return join(ep.ReadBases, fmt.Sprintf(homeworkPath, courseID))
}

func (ep Endpoints) ActivityURLs(courseID int) []string {
	return join(ep.ReadBases, fmt.Sprintf(activitiesPath, courseID))
}

func (ep Endpoints) SubmitURLs() []string {
	return join(ep.SubmitBases, submitPath)
}

// Referer returns the referrer page of a request, scoped to a course when courseID > 0.
func (ep Endpoints) Referer(courseID int) string {
	if courseID > 0 {
		return fmt.Sprintf("%s#/course/resource?courseId=%d", ep.IndexPage, courseID)
	}
	return ep.IndexPage
}

// CookieDomains returns every domain a request may target, without duplicates.
func (ep Endpoints) CookieDomains() []string {
	seen := make(map[string]bool)
	domains := make([]string, 0)
	add := func(d string) {
		if d != "" && !seen[d] {
			seen[d] = true
			domains = append(domains, d)
		}
	}
	for _, d := range ep.ExtraCookieDomains {
		add(d)
	}
	for _, bases := range [][]string{ep.ReadBases, ep.SubmitBases} {
		for _, base := range bases {
			if u, err := url.Parse(base); err == nil {
				add(u.Hostname())
			}
		}
	}
	return domains
}
