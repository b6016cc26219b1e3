package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/mntr/monitor"
	"github.com/hazyhaar/mntr/shield"
)

// diffPolicy strips everything from inline diffs except the change markers
// themselves. Snapshot content is untrusted remote HTML.
func diffPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("ins", "del")
	return p
}

func newRouter(svc *monitor.Service) http.Handler {
	sanitize := diffPolicy()

	rl := shield.NewRateLimiter(map[string]shield.RateLimitRule{
		"POST /api/pages": {MaxRequests: 30, WindowSeconds: 60},
	}, "/healthz")

	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(rl) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		depth, err := svc.QueueDepth(r.Context())
		if err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, map[string]any{"status": "ok", "queue_depth": depth})
	})

	r.Route("/api/pages", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			var (
				pages []*monitor.Page
				err   error
			)
			if owner := r.URL.Query().Get("owner"); owner != "" {
				pages, err = svc.ListPagesByOwner(r.Context(), owner)
			} else {
				pages, err = svc.ListPages(r.Context())
			}
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if pages == nil {
				pages = []*monitor.Page{}
			}
			writeJSON(w, 200, pages)
		})

		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			var p monitor.Page
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				writeError(w, 400, err)
				return
			}
			if err := svc.AddPage(r.Context(), &p); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 201, p)
		})

		r.Route("/{pageID}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				p, err := svc.GetPage(r.Context(), chi.URLParam(r, "pageID"))
				if err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, 200, p)
			})

			r.Put("/", func(w http.ResponseWriter, r *http.Request) {
				var p monitor.Page
				if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
					writeError(w, 400, err)
					return
				}
				p.ID = chi.URLParam(r, "pageID")
				if err := svc.UpdatePage(r.Context(), &p); err != nil {
					writeServiceError(w, err)
					return
				}
				updated, err := svc.GetPage(r.Context(), p.ID)
				if err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, 200, updated)
			})

			r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
				if err := svc.DeletePage(r.Context(), chi.URLParam(r, "pageID")); err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, 200, map[string]string{"status": "deleted"})
			})

			// The detail view mirrors opening a page in a UI: check now,
			// show what changed since the user last looked, then mark
			// everything as seen. A failing fetch shows the inline error
			// in place of the diff and leaves all stored state alone,
			// including the watermark.
			r.Get("/detail", func(w http.ResponseWriter, r *http.Request) {
				ctx := r.Context()
				pageID := chi.URLParam(r, "pageID")

				detail := map[string]any{}
				_, err := svc.CheckPage(ctx, pageID)
				if err != nil {
					var fe *monitor.FetchError
					if !errors.As(err, &fe) {
						writeServiceError(w, err)
						return
					}
					page, err := svc.GetPage(ctx, pageID)
					if err != nil {
						writeServiceError(w, err)
						return
					}
					detail["fetch_error"] = fe.Error()
					detail["page"] = page
					writeJSON(w, 200, detail)
					return
				}

				page, err := svc.GetPage(ctx, pageID)
				if err != nil {
					writeServiceError(w, err)
					return
				}
				detail["page"] = page

				d, err := svc.UnseenDiff(ctx, pageID)
				if err != nil && !errors.Is(err, monitor.ErrSnapshotNotFound) {
					writeServiceError(w, err)
					return
				}
				if d != nil {
					d.Inline = sanitize.Sanitize(d.Inline)
					detail["diff"] = d
				}

				mids, err := svc.Intermediaries(ctx, pageID)
				if err != nil {
					writeServiceError(w, err)
					return
				}
				if mids == nil {
					mids = []*monitor.Snapshot{}
				}
				detail["intermediaries"] = mids

				if _, err := svc.MarkLatestSeen(ctx, pageID); err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, 200, detail)
			})

			r.Post("/check", func(w http.ResponseWriter, r *http.Request) {
				res, err := svc.CheckPage(r.Context(), chi.URLParam(r, "pageID"))
				if err != nil {
					var fe *monitor.FetchError
					if errors.As(err, &fe) {
						writeJSON(w, 502, map[string]string{"error": fe.Error()})
						return
					}
					writeServiceError(w, err)
					return
				}
				writeJSON(w, 200, res)
			})

			r.Post("/enqueue", func(w http.ResponseWriter, r *http.Request) {
				if err := svc.EnqueueCheck(r.Context(), chi.URLParam(r, "pageID")); err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, 202, map[string]string{"status": "queued"})
			})

			r.Get("/snapshots", func(w http.ResponseWriter, r *http.Request) {
				snaps, err := svc.Snapshots(r.Context(), chi.URLParam(r, "pageID"), queryInt(r, "limit", 50))
				if err != nil {
					writeServiceError(w, err)
					return
				}
				if snaps == nil {
					snaps = []*monitor.Snapshot{}
				}
				writeJSON(w, 200, snaps)
			})

			r.Get("/snapshots/{snapshotID}", func(w http.ResponseWriter, r *http.Request) {
				snap, err := svc.GetSnapshot(r.Context(),
					chi.URLParam(r, "pageID"), chi.URLParam(r, "snapshotID"))
				if err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, 200, snap)
			})

			r.Post("/seen/{snapshotID}", func(w http.ResponseWriter, r *http.Request) {
				err := svc.MarkSeen(r.Context(),
					chi.URLParam(r, "pageID"), chi.URLParam(r, "snapshotID"))
				if err != nil {
					writeServiceError(w, err)
					return
				}
				writeJSON(w, 200, map[string]string{"status": "seen"})
			})

			r.Get("/diff", func(w http.ResponseWriter, r *http.Request) {
				base := r.URL.Query().Get("base")
				target := r.URL.Query().Get("target")
				if base == "" || target == "" {
					writeJSON(w, 400, map[string]string{"error": "base and target snapshot IDs required"})
					return
				}
				d, err := svc.SnapshotDiff(r.Context(), chi.URLParam(r, "pageID"), base, target)
				if err != nil {
					writeServiceError(w, err)
					return
				}
				d.Inline = sanitize.Sanitize(d.Inline)
				writeJSON(w, 200, d)
			})

			r.Get("/intermediaries", func(w http.ResponseWriter, r *http.Request) {
				mids, err := svc.Intermediaries(r.Context(), chi.URLParam(r, "pageID"))
				if err != nil {
					writeServiceError(w, err)
					return
				}
				if mids == nil {
					mids = []*monitor.Snapshot{}
				}
				writeJSON(w, 200, mids)
			})

			r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
				hist, err := svc.CheckHistory(r.Context(), chi.URLParam(r, "pageID"), queryInt(r, "limit", 50))
				if err != nil {
					writeServiceError(w, err)
					return
				}
				if hist == nil {
					hist = []*monitor.CheckLogEntry{}
				}
				writeJSON(w, 200, hist)
			})
		})
	})

	r.Route("/api/settings/{userID}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			ns, err := svc.GetNotificationSettings(r.Context(), chi.URLParam(r, "userID"))
			if err != nil {
				writeError(w, 500, err)
				return
			}
			if ns == nil {
				writeJSON(w, 404, map[string]string{"error": "no settings configured"})
				return
			}
			writeJSON(w, 200, ns)
		})

		r.Put("/", func(w http.ResponseWriter, r *http.Request) {
			var ns monitor.NotificationSettings
			if err := json.NewDecoder(r.Body).Decode(&ns); err != nil {
				writeError(w, 400, err)
				return
			}
			ns.UserID = chi.URLParam(r, "userID")
			if err := svc.SetNotificationSettings(r.Context(), &ns); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, 200, ns)
		})
	})

	return r
}

// writeServiceError maps service sentinel errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, monitor.ErrPageNotFound), errors.Is(err, monitor.ErrSnapshotNotFound):
		writeError(w, 404, err)
	case errors.Is(err, monitor.ErrInvalidInput):
		writeError(w, 400, err)
	default:
		writeError(w, 500, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
