// Package render draws the watchlist overview as a PNG via headless Chrome,
// for channels where a table reads better as an image than as text.
package render

import (
	"context"
	"encoding/base64"
	"html/template"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const overviewImageWidth = 1080

// Row is one watchlist line in the rendered overview.
type Row struct {
	Ticker    string
	SplitDate string
	Countdown string
	Open      string
	Closed    string
	Class     string
}

type overviewView struct {
	Title     string
	Timestamp string
	Rows      []Row
}

// OverviewPNG renders the watchlist rows into a PNG screenshot.
func OverviewPNG(title string, rows []Row, timestamp string) ([]byte, error) {
	html, err := renderOverviewHTML(overviewView{Title: title, Timestamp: timestamp, Rows: rows})
	if err != nil {
		return nil, err
	}
	return renderHTMLToPNG(html, overviewImageWidth, estimateOverviewHeight(len(rows)))
}

func renderOverviewHTML(view overviewView) (string, error) {
	tpl, err := template.New("overview").Parse(overviewHTMLTemplate)
	if err != nil {
		return "", err
	}
	var builder strings.Builder
	if err := tpl.Execute(&builder, view); err != nil {
		return "", err
	}
	return builder.String(), nil
}

func estimateOverviewHeight(rows int) int64 {
	const (
		basePadding  = 80
		titleHeight  = 42
		headerHeight = 44
		rowHeight    = 48
		footerHeight = 28
	)
	if rows < 1 {
		rows = 1
	}
	return int64(basePadding + titleHeight + headerHeight + footerHeight + rows*rowHeight)
}

func renderHTMLToPNG(html string, width int, height int64) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(context.Background())
	defer cancel()
	ctx, cancel = context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(html))
	var buf []byte
	err := chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(width), height),
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(200*time.Millisecond),
		chromedp.FullScreenshot(&buf, 100),
	)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

const overviewHTMLTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <style>
    :root {
      --bg: #ffffff;
      --text: #1f1f1f;
      --muted: #6f6f6f;
      --line: #f0f0f0;
      --header: #f7f7f7;
      --due: #d83a3a;
      --upcoming: #1ca05c;
      --flat: #8f8f8f;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      background: var(--bg);
      font-family: "Maple Mono NF", "Helvetica Neue", sans-serif;
      color: var(--text);
    }
    .container {
      width: 1000px;
      padding: 32px 40px 36px 40px;
    }
    .title {
      font-size: 30px;
      font-weight: 600;
      margin-bottom: 14px;
    }
    .table {
      width: 100%;
      border-collapse: collapse;
      font-size: 18px;
    }
    .table thead th {
      background: var(--header);
      color: var(--muted);
      font-weight: 500;
      padding: 12px 12px;
      text-align: left;
      border-bottom: 1px solid var(--line);
    }
    .table tbody td {
      padding: 14px 12px;
      border-bottom: 1px solid var(--line);
    }
    .table tbody tr:nth-child(even) td {
      background: #fbfbfb;
    }
    .num { text-align: left; font-variant-numeric: tabular-nums; }
    .due { color: var(--due); }
    .upcoming { color: var(--upcoming); }
    .flat { color: var(--flat); }
    .footer {
      margin-top: 12px;
      font-size: 14px;
      color: var(--muted);
    }
  </style>
</head>
<body>
  <div class="container">
    <div class="title">{{.Title}}</div>
    <table class="table">
      <thead>
        <tr>
          <th style="width: 140px;">Ticker</th>
          <th style="width: 180px;">Split date</th>
          <th>Countdown</th>
          <th class="num" style="width: 200px;">Open positions</th>
          <th class="num" style="width: 200px;">Closed out</th>
        </tr>
      </thead>
      <tbody>
        {{if .Rows}}
          {{range .Rows}}
            <tr>
              <td>{{.Ticker}}</td>
              <td>{{.SplitDate}}</td>
              <td class="{{.Class}}">{{.Countdown}}</td>
              <td class="num">{{.Open}}</td>
              <td class="num">{{.Closed}}</td>
            </tr>
          {{end}}
        {{else}}
          <tr>
            <td colspan="5" style="color: var(--muted);">Nothing on the watchlist yet</td>
          </tr>
        {{end}}
      </tbody>
    </table>
    <div class="footer">Updated: {{.Timestamp}}</div>
  </div>
</body>
</html>`
