package web

import "strings"

// pageStyle is shared by the dashboard and the login page.
const pageStyle = `
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    background: #1b1b1d;
    color: #e4e4e7;
    font-size: 13px;
  }
  header {
    display: flex;
    align-items: center;
    gap: 16px;
    padding: 12px 20px;
    border-bottom: 1px solid #3f3f46;
    background: #27272a;
  }
  header h1 { font-size: 16px; font-weight: 700; color: #fff; }
  header h1 span { color: #3b82f6; }
  .version { color: #71717a; font-size: 11px; }
  .conn { display: flex; align-items: center; gap: 6px; margin-left: auto; }
  .dot { width: 8px; height: 8px; border-radius: 50%; background: #71717a; }
  .dot.open { background: #4ade80; }
  .dot.connecting { background: #facc15; }
  .dot.closed, .dot.closing { background: #f87171; }
  .conn input {
    background: #18181b;
    border: 1px solid #3f3f46;
    border-radius: 6px;
    color: #e4e4e7;
    padding: 5px 8px;
    width: 260px;
  }
  button {
    background: #3b82f6;
    color: #fff;
    border: none;
    border-radius: 6px;
    padding: 6px 10px;
    cursor: pointer;
  }
  button:hover { background: #2563eb; }
  .logout { color: #a1a1aa; text-decoration: none; }
  main { display: grid; grid-template-columns: 200px 240px 1fr; min-height: calc(100vh - 53px); }
  .col { border-right: 1px solid #3f3f46; padding: 12px; overflow: auto; }
  .col h2 {
    font-size: 11px;
    font-weight: 600;
    text-transform: uppercase;
    letter-spacing: 0.06em;
    color: #a1a1aa;
    margin-bottom: 8px;
  }
  .item {
    display: flex;
    justify-content: space-between;
    padding: 6px 8px;
    border-radius: 6px;
    cursor: pointer;
  }
  .item:hover { background: #27272a; }
  .item.active { background: #1e3a8a; color: #fff; }
  .badge { color: #a1a1aa; font-variant-numeric: tabular-nums; }
  .detail { padding: 12px 16px; overflow: auto; }
  table { border-collapse: collapse; width: 100%; margin-bottom: 18px; }
  th, td { text-align: left; padding: 4px 8px; border-bottom: 1px solid #27272a; }
  th { color: #a1a1aa; font-weight: 500; }
  td.num { text-align: right; font-variant-numeric: tabular-nums; }
  .coord { display: flex; gap: 6px; margin-bottom: 12px; }
  .coord input { flex: 1; background: #18181b; border: 1px solid #3f3f46; border-radius: 6px; color: #e4e4e7; padding: 5px 8px; }
  .logs { max-height: 220px; overflow: auto; font-family: ui-monospace, monospace; font-size: 12px; }
  .log-ERROR { color: #f87171; }
  .log-WARN { color: #facc15; }
  .empty { color: #52525b; padding: 6px 0; }
  .subs { font-family: ui-monospace, monospace; font-size: 12px; color: #a1a1aa; margin-bottom: 12px; }
  main.login { display: flex; justify-content: center; align-items: flex-start; padding-top: 12vh; }
  .login-card {
    width: 320px;
    display: flex;
    flex-direction: column;
    gap: 10px;
    border: 1px solid #3f3f46;
    border-radius: 8px;
    background: #27272a;
  }
  .login-card label { display: flex; flex-direction: column; gap: 4px; color: #a1a1aa; }
  .login-card input {
    background: #18181b;
    border: 1px solid #3f3f46;
    border-radius: 6px;
    color: #e4e4e7;
    padding: 6px 8px;
  }
`

const pageShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{TITLE}}</title>
<style>{{STYLE}}</style>
</head>
<body>
<header>
  <h1>Reign <span>Dash</span></h1>
  <span class="version">{{APP_VERSION}}</span>
{{HEADER}}
</header>
{{BODY}}
</body>
</html>`

// renderPage fills the common document shell. Inserted values are not
// scanned for placeholders again.
func renderPage(title, version, header, body string) string {
	return strings.NewReplacer(
		"{{TITLE}}", title,
		"{{STYLE}}", pageStyle,
		"{{APP_VERSION}}", version,
		"{{HEADER}}", header,
		"{{BODY}}", body,
	).Replace(pageShell)
}

// dashboardHeader holds the connection controls; <!--LOGOUT--> is replaced
// with a sign-out link when a login is configured.
const dashboardHeader = `  <div class="conn">
    <span id="dot" class="dot"></span>
    <span id="status">closed</span>
    <input id="uri" type="text" placeholder="ws://localhost:33033/ws">
    <button id="reconnect">Connect</button>
    <!--LOGOUT-->
  </div>`

const dashboardBody = `<main>
  <section class="col">
    <h2>Clusters</h2>
    <div id="clusters"></div>
  </section>
  <section class="col">
    <h2>Services</h2>
    <div id="services"></div>
  </section>
  <section class="detail">
    <h2>Nodes</h2>
    <div id="nodes"></div>
    <h2>Metrics</h2>
    <div id="metrics"></div>
    <h2>Coordination</h2>
    <div class="coord">
      <input id="entity" type="text" placeholder="entity, e.g. leader">
      <button id="locks-btn">Fetch locks</button>
    </div>
    <div id="locks"></div>
    <h2>Subscriptions</h2>
    <div id="subs" class="subs"></div>
    <h2>Log</h2>
    <div id="logs" class="logs"></div>
  </section>
</main>
<script>
(function () {
  var model = null;

  function el(tag, cls, text) {
    var e = document.createElement(tag);
    if (cls) { e.className = cls; }
    if (text !== undefined) { e.textContent = text; }
    return e;
  }

  function post(path, body) {
    return fetch(path, {
      method: 'POST',
      headers: { 'Content-Type': 'application/json' },
      body: JSON.stringify(body)
    });
  }

  function select(kind, id) {
    post('/api/select', { kind: kind, id: id });
  }

  function list(target, items, activeId, kind, badge) {
    target.innerHTML = '';
    if (!items || items.length === 0) {
      target.appendChild(el('div', 'empty', 'none'));
      return;
    }
    items.forEach(function (item) {
      var id = typeof item === 'string' ? item : item.id;
      var row = el('div', 'item' + (id === activeId ? ' active' : ''));
      row.appendChild(el('span', '', id));
      if (badge) { row.appendChild(el('span', 'badge', String(badge(item)))); }
      row.onclick = function () { select(kind, id); };
      target.appendChild(row);
    });
  }

  function table(headers, rows) {
    var t = el('table');
    var head = el('tr');
    headers.forEach(function (h) { head.appendChild(el('th', '', h)); });
    t.appendChild(head);
    rows.forEach(function (r) {
      var tr = el('tr');
      r.forEach(function (v, i) { tr.appendChild(el('td', i > 0 && typeof v === 'number' ? 'num' : '', String(v))); });
      t.appendChild(tr);
    });
    return t;
  }

  function renderMetrics(target, view, columns) {
    target.innerHTML = '';
    if (!view) {
      target.appendChild(el('div', 'empty', 'no service selected'));
      return;
    }
    ['counters', 'histograms', 'meters', 'timers'].forEach(function (group) {
      var rows = view[group] || [];
      if (rows.length === 0) { return; }
      target.appendChild(table([group].concat(columns[group]), rows.map(function (r) {
        return [r.name].concat(r.values);
      })));
    });
  }

  function render(m) {
    model = m;
    var st = m.connection.status;
    document.getElementById('dot').className = 'dot ' + st;
    document.getElementById('status').textContent = st;
    var uri = document.getElementById('uri');
    if (document.activeElement !== uri) { uri.value = m.connection.uri || ''; }

    list(document.getElementById('clusters'), m.clusters, m.selection.cluster, 'cluster');
    list(document.getElementById('services'), m.services, m.selection.service, 'service',
      function (s) { return s.nodeCount; });

    var nodes = document.getElementById('nodes');
    nodes.innerHTML = '';
    if (m.nodes.length === 0) {
      nodes.appendChild(el('div', 'empty', 'none'));
    } else {
      nodes.appendChild(table(['pid', 'host', 'ip', 'port'], m.nodes.map(function (n) {
        return [n.pid, n.host, n.ip, n.port];
      })));
    }

    renderMetrics(document.getElementById('metrics'), m.metrics, m.columns);

    var locks = document.getElementById('locks');
    locks.innerHTML = '';
    m.locks.forEach(function (l) { locks.appendChild(el('div', 'item', l)); });

    var subs = document.getElementById('subs');
    subs.innerHTML = '';
    (m.subscriptions || []).forEach(function (a) { subs.appendChild(el('div', '', a)); });

    var logs = document.getElementById('logs');
    logs.innerHTML = '';
    m.logs.slice().reverse().forEach(function (l) {
      logs.appendChild(el('div', 'log-' + l.level,
        new Date(l.timestamp).toLocaleTimeString() + ' [' + l.label + '] ' + l.message));
    });

    var hash = m.fragment ? '#' + m.fragment : '';
    if (window.location.hash !== hash) {
      history.replaceState(null, '', window.location.pathname + hash);
    }
  }

  function connect() {
    var proto = window.location.protocol === 'https:' ? 'wss://' : 'ws://';
    var ws = new WebSocket(proto + window.location.host + '/ws');
    ws.onmessage = function (ev) { render(JSON.parse(ev.data)); };
    ws.onclose = function () { setTimeout(connect, 2000); };
  }

  window.addEventListener('hashchange', function () {
    var h = window.location.hash.replace('#', '');
    if (h && (!model || h !== model.fragment)) { select('fragment', h); }
  });

  document.getElementById('reconnect').onclick = function () {
    post('/api/reconnect', { uri: document.getElementById('uri').value });
  };
  document.getElementById('locks-btn').onclick = function () {
    var v = document.getElementById('entity').value;
    if (v) { select('coord', v); }
  };

  if (window.location.hash.length > 1) {
    select('fragment', window.location.hash);
  }
  connect();
})();
</script>`
