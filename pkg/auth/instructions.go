package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowCookieExtractionGuide prints how to copy a logged-in Bilibili cookie
// out of a browser
func ShowCookieExtractionGuide(w io.Writer) {
	line := strings.Repeat("=", 72)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "BILIBILI COOKIE GUIDE")
	fmt.Fprintln(w, line)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Anonymous requests see a truncated comment list. A logged-in cookie")
	fmt.Fprintln(w, "unlocks the full thread and the IP location of each comment.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Log in at https://www.bilibili.com")
	fmt.Fprintln(w, "2. Open Developer Tools (F12, or Cmd+Option+I on Mac)")
	fmt.Fprintln(w, "3. Network tab: reload the page and click any request to api.bilibili.com")
	fmt.Fprintln(w, "4. Under Request Headers copy the whole value of the 'Cookie:' line")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "The value must contain %s=... ; bili_jct and DedeUserID are kept too.\n", SessionCookie)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Then either:")
	fmt.Fprintln(w, "   bicodown auth login --name main        (paste when prompted)")
	fmt.Fprintf(w, "   export %s='SESSDATA=...; bili_jct=...'\n", EnvCookie)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Treat the cookie like a password. It expires after roughly six months;")
	fmt.Fprintln(w, "log in again when requests start failing with -101.")
	fmt.Fprintln(w, line)
}

// ShowQuickGuide prints the short form of the guide
func ShowQuickGuide(w io.Writer) {
	fmt.Fprintln(w, "Copy the Cookie request header from any api.bilibili.com request while")
	fmt.Fprintf(w, "logged in, then run 'bicodown auth login'. It must contain %s.\n", SessionCookie)
	fmt.Fprintln(w, "Run 'bicodown auth guide' for step-by-step instructions.")
}
