package web

import (
	"html"
	"strings"
)

const loginBody = `<main class="login">
  <form class="col login-card" method="POST" action="/login">
    <h2>Sign in to view the cluster</h2>
    <!--ERROR-->
    <label>Username
      <input name="username" type="text" autocomplete="username" required autofocus>
    </label>
    <label>Password
      <input name="password" type="password" autocomplete="current-password" required>
    </label>
    <button type="submit">Sign in</button>
  </form>
</main>`

// loginPage renders the sign-in form in the dashboard's own shell. A
// non-empty problem is shown above the fields.
func loginPage(version, problem string) string {
	body := loginBody
	if problem != "" {
		body = strings.Replace(body, "<!--ERROR-->", `<div class="log-ERROR">`+html.EscapeString(problem)+`</div>`, 1)
	}
	return renderPage("Reign Dash - Sign in", version, "", body)
}
