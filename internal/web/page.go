package web

import (
	"fmt"
	"net/http"
	"time"

	"barojab/internal/calgrid"
	appLog "barojab/internal/log"
	"barojab/internal/model"
)

// koreanWeekdays is indexed by time.Weekday (Sunday = 0).
var koreanWeekdays = []string{"일", "월", "화", "수", "목", "금", "토"}

type cellView struct {
	Day       int    // 0 for padding cells
	Label     string // calgrid.RenderLabel output
	Date      string // "2006-01-02", for the select form
	Selected  bool
	HasEvents bool
}

type pageData struct {
	Title        string
	LoginEnabled bool
	LoggedIn     bool
	Notice       string

	Year         int
	Month        int
	WeekdayNames []string
	Weeks        [][7]cellView

	SelectedDate string
	DraftStart   string
	DraftEnd     string
}

// handleIndex renders the month page: one synchronous pass that reads the
// session state, fetches markers for the displayed month, computes the grid
// and writes the page. All state mutations happen in the POST handlers and
// take effect on this next render.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	id, st := s.ensureSession(w, r)

	// Notices are one-shot: consume before rendering.
	notice := st.Notice
	if notice != "" {
		st.Notice = ""
		s.sessions.Put(id, st)
	}

	year, month := st.CalYear, st.CalMonth
	days := s.monthMarkers(r.Context(), id, st, year, month)

	grid := calgrid.ComputeGrid(year, month, s.weekStart)
	weeks := make([][7]cellView, len(grid))
	for wi, week := range grid {
		for ci, day := range week {
			if day == 0 {
				continue
			}
			selected := st.SelectedDate.Year() == year &&
				int(st.SelectedDate.Month()) == month &&
				st.SelectedDate.Day() == day
			weeks[wi][ci] = cellView{
				Day:       day,
				Label:     calgrid.RenderLabel(day, selected, days[day]),
				Date:      fmt.Sprintf("%04d-%02d-%02d", year, month, day),
				Selected:  selected,
				HasEvents: days[day],
			}
		}
	}

	names := make([]string, 7)
	for i := 0; i < 7; i++ {
		names[i] = koreanWeekdays[(int(s.weekStart)+i)%7]
	}

	data := pageData{
		Title:        "일정? 바로잡 GO!",
		LoginEnabled: s.guard != nil,
		LoggedIn:     st.LoggedIn,
		Notice:       notice,
		Year:         year,
		Month:        month,
		WeekdayNames: names,
		Weeks:        weeks,
		SelectedDate: st.SelectedDate.Format("2006-01-02"),
		DraftStart:   "18:00",
		DraftEnd:     "19:00",
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "page.gohtml", data); err != nil {
		appLog.Error("page render failed", err)
	}
}

// handleLogin starts the OAuth handshake: a fresh signed state token is
// embedded in the Google consent URL. The token is not stored anywhere;
// the callback proves possession of the signing key instead.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	id, st := s.ensureSession(w, r)

	if s.guard == nil || s.google == nil {
		st.Notice = "구글 로그인이 설정되어 있지 않습니다."
		s.sessions.Put(id, st)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	state, err := s.guard.Generate()
	if err != nil {
		appLog.Error("state token generation failed", err)
		st.Notice = "로그인을 시작할 수 없습니다. 다시 시도해 주세요."
		s.sessions.Put(id, st)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	http.Redirect(w, r, s.google.AuthURL(state), http.StatusSeeOther)
}

// handleLogout drops the session; the next render starts a fresh one.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.sessions.Delete(c.Value)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleOAuthCallback finishes the handshake. The redirect back to "/"
// doubles as the "clear callback parameters" step: a rejected or failed
// callback never leaves code/state in the address bar to be retried.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	id, st := s.ensureSession(w, r)

	q := r.URL.Query()
	code := q.Get("code")
	state := q.Get("state")

	if code == "" || state == "" || st.LoggedIn || s.guard == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	// CSRF 방어: state 서명 검증.
	if !s.guard.Verify(state) {
		appLog.Warn("oauth callback rejected: state verification failed")
		st.Notice = "OAuth state 검증에 실패했습니다. 다시 로그인해 주세요."
		s.sessions.Put(id, st)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	tok, err := s.google.Exchange(r.Context(), code)
	if err != nil {
		appLog.Error("oauth code exchange failed", err)
		st.Notice = "구글 로그인 중 오류가 발생했습니다. 다시 시도해 주세요."
		s.sessions.Put(id, st)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	st.LoggedIn = true
	st.Token = tok
	st.Notice = "구글 로그인 완료 ✅"
	s.sessions.Put(id, st)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleNav moves the calendar cursor one month. The selection is left
// untouched: navigating months must not lose a selection made elsewhere.
func (s *Server) handleNav(w http.ResponseWriter, r *http.Request) {
	id, st := s.ensureSession(w, r)

	switch r.FormValue("dir") {
	case "prev":
		st.CalYear, st.CalMonth = calgrid.Navigate(st.CalYear, st.CalMonth, calgrid.Previous)
	case "next":
		st.CalYear, st.CalMonth = calgrid.Navigate(st.CalYear, st.CalMonth, calgrid.Next)
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	s.sessions.Put(id, st)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleSelect picks a day. Malformed dates are ignored, not errors.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	id, st := s.ensureSession(w, r)

	if d, err := time.Parse("2006-01-02", r.FormValue("date")); err == nil {
		st.SelectedDate = d
		s.sessions.Put(id, st)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleDraftEvent validates the new-event form for the selected date and
// acknowledges it. The draft is transient; it lives only in this request.
func (s *Server) handleDraftEvent(w http.ResponseWriter, r *http.Request) {
	id, st := s.ensureSession(w, r)

	if !st.LoggedIn {
		st.Notice = "구글 로그인 후 사용 가능합니다."
		s.sessions.Put(id, st)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	draft := model.DraftEvent{
		Title:     r.FormValue("title"),
		Place:     r.FormValue("place"),
		StartTime: r.FormValue("start_time"),
		EndTime:   r.FormValue("end_time"),
	}

	if draft.Title == "" {
		st.Notice = "일정명을 입력해 주세요."
		s.sessions.Put(id, st)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	startT, err1 := time.Parse("15:04", draft.StartTime)
	endT, err2 := time.Parse("15:04", draft.EndTime)
	if err1 != nil || err2 != nil || !endT.After(startT) {
		st.Notice = "시작/종료 시간을 확인해 주세요."
		s.sessions.Put(id, st)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	// TODO: 기존 일정 + 교통/동선 체크 → OK면 캘린더에 insert.
	st.Notice = fmt.Sprintf("새 일정이 준비되었습니다: %s %s~%s / %s @ %s",
		st.SelectedDate.Format("2006-01-02"), draft.StartTime, draft.EndTime,
		draft.Title, draft.Place)
	s.sessions.Put(id, st)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
