package bilibili

import "encoding/json"

// envelope is the common wrapper of every API response.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type feedData struct {
	Items []rawItem `json:"items"`
}

type rawItem struct {
	IDStr   string      `json:"id_str"`
	Type    string      `json:"type"`
	Modules *rawModules `json:"modules"`
	Orig    *rawItem    `json:"orig"`
}

type rawModules struct {
	Author  *rawAuthor  `json:"module_author"`
	Tag     *rawTag     `json:"module_tag"`
	Dynamic *rawDynamic `json:"module_dynamic"`
}

type rawAuthor struct {
	Mid     int64  `json:"mid"`
	Name    string `json:"name"`
	Face    string `json:"face"`
	Pendant *struct {
		Image string `json:"image"`
	} `json:"pendant"`
}

type rawTag struct {
	Text string `json:"text"`
}

type rawDynamic struct {
	Desc  *rawRichText `json:"desc"`
	Major *rawMajor    `json:"major"`
	Topic *struct {
		Name string `json:"name"`
	} `json:"topic"`
}

type rawRichText struct {
	Text  string        `json:"text"`
	Nodes []rawRichNode `json:"rich_text_nodes"`
}

type rawRichNode struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	JumpURL string `json:"jump_url"`
	Emoji   *struct {
		IconURL string `json:"icon_url"`
	} `json:"emoji"`
}

type rawMajor struct {
	Type    string      `json:"type"`
	Archive *rawArchive `json:"archive"`
	Opus    *rawOpus    `json:"opus"`
}

type rawArchive struct {
	Title string `json:"title"`
	Cover string `json:"cover"`
	BVID  string `json:"bvid"`
}

type rawOpus struct {
	Title   string       `json:"title"`
	Summary *rawRichText `json:"summary"`
	Pics    []struct {
		URL string `json:"url"`
	} `json:"pics"`
	JumpURL string `json:"jump_url"`
}

type roomData struct {
	RoomStatus int    `json:"roomStatus"`
	LiveStatus int    `json:"liveStatus"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	Cover      string `json:"cover"`
	RoomID     int64  `json:"roomid"`
}

type cardData struct {
	Card struct {
		Mid  string `json:"mid"`
		Name string `json:"name"`
		Sex  string `json:"sex"`
		Face string `json:"face"`
	} `json:"card"`
}

type viewData struct {
	BVID  string `json:"bvid"`
	CID   int64  `json:"cid"`
	Title string `json:"title"`
	Pic   string `json:"pic"`
	Owner struct {
		Mid  int64  `json:"mid"`
		Name string `json:"name"`
	} `json:"owner"`
	Stat struct {
		View int64 `json:"view"`
		Like int64 `json:"like"`
		Coin int64 `json:"coin"`
	} `json:"stat"`
}

type onlineData struct {
	Total string `json:"total"`
}
