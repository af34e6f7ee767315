package classroomsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/shule/core"
	onerostersvc "github.com/trezcool/shule/services/oneroster"
)

var ErrNotFound = errors.New("classroom: resource not found")

type (
	// Client talks to the classroom provider's courses API with a
	// pre-authorized bearer token.
	Client struct {
		baseURL   string
		token     string
		pageLimit int
		http      *http.Client
		limiter   *rate.Limiter
	}

	Options struct {
		PageLimit int
		Timeout   time.Duration
		Transport http.RoundTripper
	}
)

func NewClient(baseURL, token string, opts ...Options) (*Client, error) {
	if err := onerostersvc.ValidateBaseURL(baseURL); err != nil {
		return nil, err
	}

	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.PageLimit == 0 {
		o.PageLimit = core.Conf.Sync.PageLimit
	}
	if o.Timeout == 0 {
		o.Timeout = core.Conf.Sync.RequestTimeout
	}

	return &Client{
		baseURL:   baseURL,
		token:     token,
		pageLimit: o.PageLimit,
		http: &http.Client{
			Timeout:   o.Timeout,
			Transport: o.Transport,
		},
		limiter: rate.NewLimiter(rate.Limit(10), 5),
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		body = bytes.NewReader(buf)
	}

	rawURL := c.baseURL + path
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response body")
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return errors.Errorf("classroom: %s %s returned %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrapf(err, "decoding %s response", path)
		}
	}
	return nil
}

// listPages walks every page of a list endpoint via nextPageToken.
func (c *Client) listPages(ctx context.Context, path string, collect func(body json.RawMessage) (string, error)) error {
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(c.pageLimit))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var raw json.RawMessage
		if err := c.do(ctx, http.MethodGet, path, q, nil, &raw); err != nil {
			return err
		}
		next, err := collect(raw)
		if err != nil {
			return errors.Wrapf(err, "decoding %s page", path)
		}
		if next == "" {
			return nil
		}
		pageToken = next
	}
}

func (c *Client) Courses(ctx context.Context) ([]Course, error) {
	var out []Course
	err := c.listPages(ctx, "/v1/courses", func(body json.RawMessage) (string, error) {
		var env coursesEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return "", err
		}
		out = append(out, env.Courses...)
		return env.NextPageToken, nil
	})
	return out, err
}

func (c *Client) Students(ctx context.Context, courseID string) ([]Student, error) {
	var out []Student
	err := c.listPages(ctx, "/v1/courses/"+url.PathEscape(courseID)+"/students", func(body json.RawMessage) (string, error) {
		var env studentsEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return "", err
		}
		out = append(out, env.Students...)
		return env.NextPageToken, nil
	})
	return out, err
}

func (c *Client) Teachers(ctx context.Context, courseID string) ([]Teacher, error) {
	var out []Teacher
	err := c.listPages(ctx, "/v1/courses/"+url.PathEscape(courseID)+"/teachers", func(body json.RawMessage) (string, error) {
		var env teachersEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return "", err
		}
		out = append(out, env.Teachers...)
		return env.NextPageToken, nil
	})
	return out, err
}

func (c *Client) CourseWork(ctx context.Context, courseID string) ([]CourseWork, error) {
	var out []CourseWork
	err := c.listPages(ctx, "/v1/courses/"+url.PathEscape(courseID)+"/courseWork", func(body json.RawMessage) (string, error) {
		var env courseWorkEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return "", err
		}
		out = append(out, env.CourseWork...)
		return env.NextPageToken, nil
	})
	return out, err
}

func (c *Client) CreateCourseWork(ctx context.Context, courseID string, cw CourseWork) (CourseWork, error) {
	var out CourseWork
	err := c.do(ctx, http.MethodPost, "/v1/courses/"+url.PathEscape(courseID)+"/courseWork", nil, cw, &out)
	return out, err
}

// UpdateCourseWork patches the mutable fields of an existing assignment.
func (c *Client) UpdateCourseWork(ctx context.Context, courseID, courseWorkID string, cw CourseWork) (CourseWork, error) {
	q := url.Values{}
	q.Set("updateMask", "title,description,maxPoints,dueDate")
	var out CourseWork
	path := "/v1/courses/" + url.PathEscape(courseID) + "/courseWork/" + url.PathEscape(courseWorkID)
	err := c.do(ctx, http.MethodPatch, path, q, cw, &out)
	return out, err
}

func (c *Client) StudentSubmissions(ctx context.Context, courseID, courseWorkID string) ([]StudentSubmission, error) {
	var out []StudentSubmission
	path := "/v1/courses/" + url.PathEscape(courseID) + "/courseWork/" + url.PathEscape(courseWorkID) + "/studentSubmissions"
	err := c.listPages(ctx, path, func(body json.RawMessage) (string, error) {
		var env submissionsEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return "", err
		}
		out = append(out, env.StudentSubmissions...)
		return env.NextPageToken, nil
	})
	return out, err
}

// PatchSubmissionGrade writes an assigned grade back onto one submission.
func (c *Client) PatchSubmissionGrade(ctx context.Context, courseID, courseWorkID, submissionID string, grade float64) error {
	q := url.Values{}
	q.Set("updateMask", "assignedGrade,draftGrade")
	path := "/v1/courses/" + url.PathEscape(courseID) + "/courseWork/" + url.PathEscape(courseWorkID) +
		"/studentSubmissions/" + url.PathEscape(submissionID)
	payload := map[string]float64{"assignedGrade": grade, "draftGrade": grade}
	return c.do(ctx, http.MethodPatch, path, q, payload, nil)
}
