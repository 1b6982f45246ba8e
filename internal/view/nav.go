package view

// NavLink はヘッダーのナビゲーションリンク。
type NavLink struct {
	Label  string
	Href   string
	Active bool
}

// navTargets はヘッダーに表示する固定のリンク先。
var navTargets = []NavLink{
	{Label: "Home", Href: "/"},
	{Label: "404", Href: "/404"},
}

// Navigation は現在のパスに一致するリンクだけをActiveにしたリンク一覧を返す。
func Navigation(currentPath string) []NavLink {
	links := make([]NavLink, len(navTargets))
	for i, target := range navTargets {
		links[i] = NavLink{
			Label:  target.Label,
			Href:   target.Href,
			Active: target.Href == currentPath,
		}
	}
	return links
}
