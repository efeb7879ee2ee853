package web

const pageTemplates = `
{{define "header"}}<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>Warpspeed Portal</title></head>
<body>{{end}}

{{define "footer"}}</body>
</html>{{end}}

{{define "login"}}{{template "header"}}
<h1>Sign in</h1>
{{if .Notice}}<p class="notice">{{.Notice}}</p>{{end}}
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/login">
  <input type="hidden" name="redirect" value="{{.Redirect}}">
  <label>Email <input type="email" name="email" value="{{.Email}}" required></label>
  <button type="submit">Email me a sign-in link</button>
</form>
{{template "footer"}}{{end}}

{{define "profile"}}{{template "header"}}
<h1>Welcome{{with .User.FirstName}}, {{.}}{{end}}</h1>
<dl>
  <dt>Email</dt><dd>{{.User.Email}}</dd>
  {{with .User.Nickname}}<dt>Nickname</dt><dd>{{.}}</dd>{{end}}
  {{with .User.Bio}}<dt>Bio</dt><dd>{{.}}</dd>{{end}}
</dl>
<form method="post" action="/logout"><button type="submit">Sign out</button></form>
{{template "footer"}}{{end}}

{{define "error"}}{{template "header"}}
<h1>Something went wrong</h1>
<p class="error">{{.Message}}</p>
<p><a href="/">Try again</a></p>
{{template "footer"}}{{end}}
`
