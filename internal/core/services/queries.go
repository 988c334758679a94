// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package services contains the business logic for interacting with data
// sources. This file centralizes the BigQuery SQL used by the analytics
// service. The fmt.Sprintf verb stands in for the fully qualified table name
// only; the campaign id arrives as a request value and is bound through a
// named query parameter, never interpolated.
package services

const (
	// QryCampaignSummary aggregates the scene rows of one campaign into the
	// headline numbers: distinct videos, scene count, total analyzed footage
	// in seconds, and mean analysis confidence.
	QryCampaignSummary = "SELECT COUNT(DISTINCT video_id) AS video_count, COUNT(*) AS scene_count, IFNULL(SUM(duration), 0) AS total_duration, IFNULL(AVG(confidence), 0) AS avg_confidence FROM `%s` WHERE campaign_id = @campaign_id"

	// QryTopMoods ranks the moods tagged across a campaign's scenes by how
	// often they occur. Untagged scenes (empty mood) are excluded.
	QryTopMoods = "SELECT mood, COUNT(*) AS scene_count FROM `%s` WHERE campaign_id = @campaign_id AND mood != '' GROUP BY mood ORDER BY scene_count DESC LIMIT %d"
)
